package runtime

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

func ToStringValueMap(m map[string]any) map[string]string {
	result := make(map[string]string)
	for key, value := range m {
		switch v := value.(type) {
		case string:
			result[key] = v
		case int:
			result[key] = fmt.Sprintf("%d", v)
		case float64:
			result[key] = fmt.Sprintf("%f", v)
		case bool:
			result[key] = fmt.Sprintf("%t", v)
		case nil:
			result[key] = ""
		default:
			result[key] = fmt.Sprintf("%v", v)
		}
	}
	return result
}

// mapToStructFromYAML converts a map[string]any to a struct using yaml tags
// for field mapping. Used to merge loosely-typed raw values (parsed YAML,
// env-derived overrides) onto a config struct whose fields are tagged for
// the YAML configuration form.
func mapToStructFromYAML(m map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}
