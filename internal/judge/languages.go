package judge

import "github.com/Anzful/devtrain/internal/common"

// Fixed mapping from language slugs to the execution service's numeric ids.
var languageIDs = map[string]int{
	"javascript": 63,
	"python":     71,
	"c":          50,
	"cpp":        54,
	"c++":        54,
}

// LanguageID resolves a language slug. An unrecognized language is a
// client-side validation error and is never sent to the service.
func LanguageID(language string) (int, error) {
	id, ok := languageIDs[language]
	if !ok {
		return 0, common.Errorf("unsupported language %q: %w", language, common.ErrValidation)
	}
	return id, nil
}

// SupportedLanguages lists the accepted language slugs.
func SupportedLanguages() []string {
	return []string{"javascript", "python", "c", "cpp"}
}
