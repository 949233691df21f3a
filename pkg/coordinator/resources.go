package coordinator

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sipeed/emoclaw/pkg/prompt"
	"github.com/sipeed/emoclaw/pkg/reflection"
)

// Resources is the resources.json file: the agent persona and the
// reflection stage list.
type Resources struct {
	EmotionSetup     prompt.Persona            `json:"emotion_setup"`
	ReflectionStages []reflection.StageConfig `json:"reflection_stages"`
}

// LoadResources reads and decodes path. Unlike the config file, a missing
// resources file is an error: without stages there is no pipeline.
func LoadResources(path string) (*Resources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading resources: %w", err)
	}
	var res Resources
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &res, nil
}
