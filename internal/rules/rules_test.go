package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{
			name: "valid selector rule",
			rule: Rule{Field: FieldPrice, Mode: ModeSelector, Selector: "//span[@id='price']"},
		},
		{
			name: "valid regex rule without selector scans whole document",
			rule: Rule{Field: FieldPrice, Mode: ModeSelectorRegex, Pattern: `price:\s*([\d.,]+)`},
		},
		{
			name: "valid json-path rule",
			rule: Rule{Field: FieldStatus, Mode: ModeJSONPath, Selector: "product.availability"},
		},
		{
			name:    "unknown field",
			rule:    Rule{Field: "rating", Mode: ModeSelector, Selector: "//x"},
			wantErr: ErrUnknownField,
		},
		{
			name:    "unknown mode",
			rule:    Rule{Field: FieldPrice, Mode: "jsonpath"},
			wantErr: ErrUnknownMode,
		},
		{
			name:    "selector mode requires selector",
			rule:    Rule{Field: FieldPrice, Mode: ModeSelector},
			wantErr: ErrMissingSelector,
		},
		{
			name:    "regex mode requires pattern",
			rule:    Rule{Field: FieldPrice, Mode: ModeSelectorRegex},
			wantErr: ErrMissingPattern,
		},
		{
			name:    "malformed pattern",
			rule:    Rule{Field: FieldPrice, Mode: ModeSelectorRegex, Pattern: `([`},
			wantErr: ErrInvalidPattern,
		},
		{
			name: "malformed fallback pattern",
			rule: Rule{
				Field: FieldPrice, Mode: ModeSelectorRegex,
				Pattern:          `(\d+)`,
				FallbackPatterns: []string{`(`},
			},
			wantErr: ErrInvalidPattern,
		},
		{
			name: "unknown transform kind",
			rule: Rule{
				Field: FieldPrice, Mode: ModeSelector, Selector: "//x",
				Transforms: []Transform{{Kind: "uppercase"}},
			},
			wantErr: ErrInvalidTransform,
		},
		{
			name: "malformed regex-replace transform",
			rule: Rule{
				Field: FieldPrice, Mode: ModeSelector, Selector: "//x",
				Transforms: []Transform{{Kind: TransformRegexReplace, Pattern: `[`}},
			},
			wantErr: ErrInvalidTransform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Compile()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTruthMatches(t *testing.T) {
	rule := Rule{
		Field: FieldStatus, Mode: ModeSelector, Selector: "//x",
		AsBool:       true,
		TrueLiterals: []string{"true", "1", "In Stock"},
	}
	require.NoError(t, rule.Compile())

	assert.True(t, rule.TruthMatches("TRUE"))
	assert.True(t, rule.TruthMatches("  in stock  "))
	assert.True(t, rule.TruthMatches("1"))
	assert.False(t, rule.TruthMatches("out of stock"))
	assert.False(t, rule.TruthMatches(""))
}

func TestForField(t *testing.T) {
	set := []*Rule{
		{Field: FieldPrice, Priority: 20, Selector: "b"},
		{Field: FieldStatus, Priority: 5, Selector: "s"},
		{Field: FieldPrice, Priority: 10, Selector: "a"},
		{Field: FieldPrice, Priority: 10, Selector: "a2"},
	}

	got := ForField(set, FieldPrice)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Selector)
	assert.Equal(t, "a2", got[1].Selector, "equal priority keeps insertion order")
	assert.Equal(t, "b", got[2].Selector)
}

func TestCompileAll_NamesFailingRule(t *testing.T) {
	set := []*Rule{
		{ScraperID: "shop", Field: FieldPrice, Mode: ModeSelector, Selector: "//x"},
		{ScraperID: "shop", Field: FieldPrice, Priority: 3, Mode: "bogus"},
	}

	err := CompileAll(set)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shop/price prio 3")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
