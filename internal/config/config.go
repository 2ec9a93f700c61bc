package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "SNAPCAL_"

type Application struct {
	// Host is the public base URL of the backend, used to build the OAuth redirect URL.
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	DefaultTimezone string   `koanf:"defaulttimezone"`
	Frontend        Frontend `koanf:"frontend"`
	Google          Google   `koanf:"google"`
	AI              AI       `koanf:"ai"`
	Session         Session  `koanf:"session"`
	Cors            Cors     `koanf:"cors"`
	Upload          Upload   `koanf:"upload"`
	Timeouts        Timeouts `koanf:"timeouts"`
	Database        Database `koanf:"db"`
}

type Frontend struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
	// Url is where the browser is sent back to after the Google consent screen.
	Url string `koanf:"url"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
}

type AI struct {
	BaseUrl string `koanf:"baseurl"`
	ApiKey  string `koanf:"apikey"`
	Model   string `koanf:"model"`
	// Transcription settings are used for voice notes. An empty base URL sends them to BaseUrl.
	TranscriptionBaseUrl string `koanf:"transcriptionbaseurl"`
	TranscriptionApiKey  string `koanf:"transcriptionapikey"`
	TranscriptionModel   string `koanf:"transcriptionmodel"`
}

type Session struct {
	CookieName    string        `koanf:"cookiename"`
	Secure        bool          `koanf:"secure"`
	SameSite      string        `koanf:"samesite"`
	Ttl           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweepinterval"`
}

type Cors struct {
	AllowedOrigins []string `koanf:"allowedorigins"`
}

type Upload struct {
	MaxBytes      int64 `koanf:"maxbytes"`
	RatePerMinute int   `koanf:"rateperminute"`
	Burst         int   `koanf:"burst"`
}

type Timeouts struct {
	Extraction time.Duration `koanf:"extraction"`
	Timezone   time.Duration `koanf:"timezone"`
	Calendar   time.Duration `koanf:"calendar"`
}

type Database struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Pass     string `koanf:"pass"`
	Name     string `koanf:"name"`
	Schema   string `koanf:"schema"`
	MaxConns int32  `koanf:"maxconns"`
}

func Defaults() Application {
	return Application{
		Host:            "http://localhost:8181",
		Port:            8181,
		DefaultTimezone: "UTC",
		Frontend: Frontend{
			Enabled: true,
			Dir:     "public",
			Url:     "/",
		},
		AI: AI{
			BaseUrl:              "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:                "gemini-2.5-flash",
			TranscriptionBaseUrl: "https://api.openai.com/v1",
			TranscriptionModel:   "whisper-1",
		},
		Session: Session{
			CookieName:    "snapcal_session",
			Secure:        false,
			SameSite:      "lax",
			Ttl:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Upload: Upload{
			MaxBytes:      10 << 20,
			RatePerMinute: 6,
			Burst:         3,
		},
		Timeouts: Timeouts{
			Extraction: 60 * time.Second,
			Timezone:   10 * time.Second,
			Calendar:   15 * time.Second,
		},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "snapcal",
			Pass:     "",
			Name:     "snapcal",
			Schema:   "snapcal",
			MaxConns: 10,
		},
	}
}

// Load reads configuration from defaults, then the YAML file at path, then SNAPCAL_* environment variables.
func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			if k == "cors.allowedorigins" {
				return k, strings.Split(v, ",")
			}
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
