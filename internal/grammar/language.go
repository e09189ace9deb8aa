package grammar

import (
	"regexp"
	"strings"
)

// LanguageSpec is the result of normalizing a caller-supplied language
// input: a human-readable name fed to the translator, and the ordered list
// of key-suffix variants that get written into the rewritten file.
type LanguageSpec struct {
	PromptName string
	Variants   []string
}

// langTagPattern matches a well-formed language tag suffix: a 2-3 letter
// primary subtag optionally followed by further hyphen/underscore-joined
// 2-8 char alphanumeric subtags (spec §4.1's localized-key grammar).
var langTagPattern = regexp.MustCompile(`(?i)^[a-z]{2,3}([-_][a-z0-9]{2,8})*$`)

// IsLanguageTag reports whether s is a well-formed language tag suffix.
func IsLanguageTag(s string) bool {
	return langTagPattern.MatchString(s)
}

// PrimarySubtag returns the lowercased first segment of a language tag,
// e.g. "zh" for "zh_cn" or "zh-Hans".
func PrimarySubtag(tag string) string {
	tag = strings.ToLower(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		return tag[:i]
	}
	return tag
}

// aliasGroup is one row of the normalization table in spec §4.2.
type aliasGroup struct {
	aliases    []string
	promptName string
	variants   []string
}

var aliasGroups = []aliasGroup{
	{
		aliases:    []string{"zh", "zh-cn", "zh-hans", "中文", "汉化", "cn"},
		promptName: "中文",
		variants:   []string{"zh", "zh_cn", "cn"},
	},
	{
		aliases:    []string{"ru", "russian", "俄", "русский"},
		promptName: "俄文",
		variants:   []string{"ru", "ru_ru"},
	},
	{
		aliases:    []string{"en", "english", "英文"},
		promptName: "英文",
		variants:   []string{"en", "en_us"},
	},
	{
		aliases:    []string{"ja", "japanese", "日文"},
		promptName: "日文",
		variants:   []string{"ja", "ja_jp"},
	},
	{
		aliases:    []string{"ko", "korean", "韩文"},
		promptName: "韩文",
		variants:   []string{"ko", "ko_kr"},
	},
}

// ResolveLanguage normalizes a caller-supplied language string (case and
// whitespace insensitive) into a LanguageSpec, per spec §4.2.
func ResolveLanguage(input string) LanguageSpec {
	key := strings.ToLower(strings.TrimSpace(input))

	for _, group := range aliasGroups {
		for _, alias := range group.aliases {
			if key == strings.ToLower(alias) {
				return LanguageSpec{
					PromptName: group.promptName,
					Variants:   append([]string(nil), group.variants...),
				}
			}
		}
	}

	// Any other well-formed language tag: primary subtag as the sole
	// variant, prompt name is the original input unchanged.
	trimmed := strings.TrimSpace(input)
	return LanguageSpec{
		PromptName: trimmed,
		Variants:   []string{PrimarySubtag(trimmed)},
	}
}
