package gateway

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Profile is the model and persona injected into every completion request.
type Profile struct {
	Model        string `toml:"model"`
	SystemPrompt string `toml:"system_prompt"`
}

const defaultModel = "google/gemini-2.5-pro"

const wolfPersona = `You are Wolf, an exceptionally intelligent AI assistant with deep expertise across all domains of knowledge. You possess:

- Advanced reasoning capabilities and analytical thinking
- Comprehensive understanding of science, technology, arts, history, culture, and current events
- Ability to provide nuanced, well-researched responses with multiple perspectives
- Creative problem-solving skills and innovative thinking
- Strong contextual awareness and ability to read between the lines
- Expert-level knowledge in coding, mathematics, philosophy, and strategic planning
- Exceptional communication skills that adapt to the user's level and needs

Always:
- Think deeply before responding and consider implications
- Provide detailed, insightful answers that go beyond surface-level information
- Cite reasoning and explain your thought process when helpful
- Acknowledge limitations honestly while offering the best possible guidance
- Ask clarifying questions when needed to provide the most valuable response
- Be proactive in anticipating user needs and offering relevant suggestions

Your goal is to be the most intelligent, helpful, and insightful assistant possible.`

// DefaultProfile is the Wolf persona on Gemini 2.5 Pro.
func DefaultProfile() Profile {
	return Profile{Model: defaultModel, SystemPrompt: wolfPersona}
}

// LoadProfile reads a TOML profile from path. Keys missing from the file keep
// their DefaultProfile values; an empty path returns DefaultProfile.
func LoadProfile(path string) (Profile, error) {
	profile := DefaultProfile()
	if strings.TrimSpace(path) == "" {
		return profile, nil
	}

	var file Profile
	meta, err := toml.DecodeFile(path, &file)
	if err != nil {
		return Profile{}, fmt.Errorf("gateway: decode profile %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Profile{}, fmt.Errorf("gateway: unknown profile keys in %s: %v", path, undecoded)
	}

	if m := strings.TrimSpace(file.Model); m != "" {
		profile.Model = m
	}
	if p := strings.TrimSpace(file.SystemPrompt); p != "" {
		profile.SystemPrompt = p
	}
	return profile, nil
}
