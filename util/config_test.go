package util

import (
	"testing"
)

func validConfig() *AppConfig {
	c := &AppConfig{}
	c.Conf.Host = "127.0.0.1"
	c.Conf.HttpPort = 8000
	c.Conf.Domain = "example.com"
	c.Conf.Db = "fedifeed.db"
	c.Website.Feed = "https://example.com/feed.xml"
	c.Website.UpdateFreq = 5
	c.Actor.Username = "blog"
	return c
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Valid config rejected: %v", err)
	}
}

func TestValidateRequiresDomain(t *testing.T) {
	c := validConfig()
	c.Conf.Domain = ""
	if err := c.Validate(); err == nil {
		t.Error("Expected error for missing domain")
	}
}

func TestValidateRequiresFeed(t *testing.T) {
	c := validConfig()
	c.Website.Feed = ""
	if err := c.Validate(); err == nil {
		t.Error("Expected error for missing feed URL")
	}
}

func TestValidateRequiresPositiveUpdateFreq(t *testing.T) {
	c := validConfig()
	c.Website.UpdateFreq = 0
	if err := c.Validate(); err == nil {
		t.Error("Expected error for zero updateFreq")
	}

	c.Website.UpdateFreq = -5
	if err := c.Validate(); err == nil {
		t.Error("Expected error for negative updateFreq")
	}
}

func TestValidateRequiresUsername(t *testing.T) {
	c := validConfig()
	c.Actor.Username = ""
	if err := c.Validate(); err == nil {
		t.Error("Expected error for missing username")
	}
}

func TestValidateTagFormat(t *testing.T) {
	c := validConfig()
	c.Message.TagFormat = ""
	if err := c.Validate(); err != nil {
		t.Fatalf("Empty tag format should be accepted: %v", err)
	}
	if c.Message.TagFormat != TagFormatCamel {
		t.Errorf("Empty tag format should default to %s, got %s", TagFormatCamel, c.Message.TagFormat)
	}

	for _, mode := range []string{TagFormatCamel, TagFormatPascal, TagFormatSnake} {
		c := validConfig()
		c.Message.TagFormat = mode
		if err := c.Validate(); err != nil {
			t.Errorf("Tag format %s rejected: %v", mode, err)
		}
	}

	c = validConfig()
	c.Message.TagFormat = "kebab-case"
	if err := c.Validate(); err == nil {
		t.Error("Expected error for unknown tag format")
	}
}
