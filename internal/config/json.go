package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type StructuredJSONConfig struct {
	App struct {
		ClientID      string `json:"client_id"`
		ClientVersion string `json:"client_version"`
	} `json:"app,omitempty"`

	API struct {
		Key               string   `json:"key"`
		BaseURL           string   `json:"base_url"`
		RequestTimeout    Duration `json:"request_timeout"`
		MaxRetries        int      `json:"max_retries"`
		RequestsPerSecond float64  `json:"requests_per_second"`
	} `json:"api,omitempty"`

	Storage struct {
		Engine string `json:"engine"`
		DSN    string `json:"dsn"`
	} `json:"storage,omitempty"`

	Server struct {
		HTTPAddress    string   `json:"http_address"`
		RequestTimeout Duration `json:"request_timeout"`
	} `json:"server,omitempty"`

	Sync struct {
		Interval        Duration `json:"interval"`
		BaseBackoff     Duration `json:"base_backoff"`
		MaxBackoff      Duration `json:"max_backoff"`
		KeepExpiredFor  Duration `json:"keep_expired_for"`
		Lists           []string `json:"lists"`
		PruneStaleLists bool     `json:"prune_stale_lists"`
	} `json:"sync,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		App: App{
			ClientID:      jsonCfg.App.ClientID,
			ClientVersion: jsonCfg.App.ClientVersion,
		},
		API: API{
			Key:               jsonCfg.API.Key,
			BaseURL:           jsonCfg.API.BaseURL,
			RequestTimeout:    time.Duration(jsonCfg.API.RequestTimeout),
			MaxRetries:        jsonCfg.API.MaxRetries,
			RequestsPerSecond: jsonCfg.API.RequestsPerSecond,
		},
		Storage: Storage{
			Engine: jsonCfg.Storage.Engine,
			DSN:    jsonCfg.Storage.DSN,
		},
		Server: Server{
			HTTPAddress:    jsonCfg.Server.HTTPAddress,
			RequestTimeout: time.Duration(jsonCfg.Server.RequestTimeout),
		},
		Sync: Sync{
			Interval:        time.Duration(jsonCfg.Sync.Interval),
			BaseBackoff:     time.Duration(jsonCfg.Sync.BaseBackoff),
			MaxBackoff:      time.Duration(jsonCfg.Sync.MaxBackoff),
			KeepExpiredFor:  time.Duration(jsonCfg.Sync.KeepExpiredFor),
			Lists:           jsonCfg.Sync.Lists,
			PruneStaleLists: jsonCfg.Sync.PruneStaleLists,
		},
		JSONFilePath: "",
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling from strings like "1h", "30s"
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return json.Unmarshal(b, (*time.Duration)(d))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
