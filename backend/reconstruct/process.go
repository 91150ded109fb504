package reconstruct

import (
	"encoding/json"
	"fmt"

	"github.com/spanlens/spanlens/backend/ingest"
	"github.com/spanlens/spanlens/internal/models"
	"github.com/spanlens/spanlens/internal/report"
)

type rawProcess struct {
	ServiceName any              `json:"serviceName"`
	Tags        []ingest.RawTag  `json:"tags"`
}

// BuildProcessMap flattens the nested process object of a raw item into a
// processID -> Service mapping. A required field that is not a string makes
// the item malformed.
func BuildProcessMap(item *ingest.RawItem) (map[string]*models.Service, error) {
	procMap := make(map[string]*models.Service, len(item.Processes))
	for procKey, raw := range item.Processes {
		var rp rawProcess
		if err := json.Unmarshal(raw, &rp); err != nil {
			return nil, fmt.Errorf("malformed process %q: %w", procKey, err)
		}
		name, ok := rp.ServiceName.(string)
		if !ok {
			return nil, fmt.Errorf("malformed process %q: serviceName is not a string", procKey)
		}
		svc := &models.Service{Name: name}
		for _, tag := range rp.Tags {
			val, err := tag.GetString()
			if err != nil {
				return nil, fmt.Errorf("malformed process %q: %w", procKey, err)
			}
			switch tag.Key {
			case "hostname":
				svc.ServerName = val
			case "ip":
				svc.IP = val
			case "jaeger.version":
				svc.TracerVersion = val
			default:
				report.Addf(report.Details, "Unknown key %q for process %s", tag.Key, procKey)
			}
		}
		procMap[procKey] = svc
	}
	return procMap, nil
}
