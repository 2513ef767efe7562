package onboarding

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultContent []byte

type Content struct {
	Hooks             []string      `yaml:"hooks" json:"hooks"`
	Genres            []string      `yaml:"genres" json:"genres"`
	ReadingGoals      []string      `yaml:"reading_goals" json:"readingGoals"`
	Archetypes        []string      `yaml:"archetypes" json:"archetypes"`
	ConversationVibes []string      `yaml:"conversation_vibes" json:"conversationVibes"`
	VisualStyles      []string      `yaml:"visual_styles" json:"visualStyles"`
	PopularBooks      []string      `yaml:"popular_books" json:"popularBooks"`
	Testimonials      []Testimonial `yaml:"testimonials" json:"testimonials"`
	IncludedFeatures  []string      `yaml:"included_features" json:"includedFeatures"`
}

type Testimonial struct {
	Quote  string `yaml:"quote" json:"quote"`
	Author string `yaml:"author" json:"author"`
}

// LoadContent reads the onboarding catalog at path, or the embedded default
// when path is empty.
func LoadContent(path string) (*Content, error) {
	data := defaultContent
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read onboarding content: %w", err)
		}
		data = b
	}

	var content Content
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("failed to parse onboarding content: %w", err)
	}
	if len(content.Hooks) == 0 {
		return nil, fmt.Errorf("onboarding content has no hooks")
	}
	return &content, nil
}

// MustLoadDefaultContent parses the embedded catalog.
func MustLoadDefaultContent() *Content {
	c, err := LoadContent("")
	if err != nil {
		panic(err)
	}
	return c
}

func contains(options []string, v string) bool {
	return slices.Contains(options, v)
}
