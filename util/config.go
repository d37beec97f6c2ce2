package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "fedifeed"
const ConfigFileName = "config.yaml"

// Tag casing modes accepted in message.tagFormat.
const (
	TagFormatCamel  = "camelCase"
	TagFormatPascal = "CamelCase"
	TagFormatSnake  = "snake_case"
)

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host     string
		HttpPort int    `yaml:"httpPort"`
		Domain   string `yaml:"domain"`
		Db       string `yaml:"db"`
	}
	Website struct {
		Feed       string
		UpdateFreq int `yaml:"updateFreq"` // minutes between feed polls
	}
	Actor struct {
		Username       string
		DisplayName    string `yaml:"displayName"`
		Summary        string
		Avatar         string
		Header         string
		PublicKeyFile  string            `yaml:"publicKeyFile"`
		PrivateKeyFile string            `yaml:"privateKeyFile"`
		Following      []string          `yaml:"following"`
		Attachments    map[string]string `yaml:"attachments"`
	}
	Message struct {
		Format          string
		TagFormat       string   `yaml:"tagFormat"`
		Groups          []string `yaml:"groups"`
		AcceptResponses bool     `yaml:"acceptResponses"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func applyEnvOverrides(c *AppConfig) {
	envHost := os.Getenv("FEDIFEED_HOST")
	envHttpPort := os.Getenv("FEDIFEED_HTTPPORT")
	envDomain := os.Getenv("FEDIFEED_DOMAIN")
	envDb := os.Getenv("FEDIFEED_DB")
	envFeed := os.Getenv("FEDIFEED_FEED")
	envUsername := os.Getenv("FEDIFEED_USERNAME")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envDomain != "" {
		c.Conf.Domain = envDomain
	}

	if envDb != "" {
		c.Conf.Db = envDb
	}

	if envFeed != "" {
		c.Website.Feed = envFeed
	}

	if envUsername != "" {
		c.Actor.Username = envUsername
	}
}

// Validate rejects configurations the process cannot safely run with.
// Any error here is fatal at startup.
func (c *AppConfig) Validate() error {
	if c.Conf.Domain == "" {
		return fmt.Errorf("conf.domain must be set")
	}

	if c.Website.Feed == "" {
		return fmt.Errorf("website.feed must be set")
	}

	if c.Website.UpdateFreq <= 0 {
		return fmt.Errorf("website.updateFreq must be a positive number of minutes")
	}

	if c.Actor.Username == "" {
		return fmt.Errorf("actor.username must be set")
	}

	switch c.Message.TagFormat {
	case "":
		c.Message.TagFormat = TagFormatCamel
	case TagFormatCamel, TagFormatPascal, TagFormatSnake:
	default:
		return fmt.Errorf("invalid tag format %q, must be one of: %s, %s, %s",
			c.Message.TagFormat, TagFormatCamel, TagFormatPascal, TagFormatSnake)
	}

	return nil
}
