package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	_ "embed"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"html"
	"log"
	"os"
	"regexp"
	"strings"
)

//go:embed version.txt
var embeddedVersion string

type RsaKeyPair struct {
	Private string
	Public  string
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}

func GeneratePemKeypair() *RsaKeyPair {
	bitSize := 2048

	key, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		panic(err)
	}

	keyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		},
	)

	// PKIX encoding, remote servers expect a standard "PUBLIC KEY" block
	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		panic(err)
	}

	pubPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: pubBytes,
		},
	)

	return &RsaKeyPair{Private: string(keyPEM[:]), Public: string(pubPEM[:])}
}

// LoadOrCreateKeypair reads the actor keypair from the given PEM files,
// generating and writing a fresh pair when either file is missing.
func LoadOrCreateKeypair(publicKeyFile, privateKeyFile string) (*RsaKeyPair, error) {
	pubPath := ResolveFilePath(publicKeyFile)
	privPath := ResolveFilePath(privateKeyFile)

	pub, pubErr := os.ReadFile(pubPath)
	priv, privErr := os.ReadFile(privPath)

	if pubErr == nil && privErr == nil {
		return &RsaKeyPair{Private: string(priv), Public: string(pub)}, nil
	}

	log.Printf("Actor keypair not found, generating a new one at %s / %s", pubPath, privPath)
	keypair := GeneratePemKeypair()

	if err := os.WriteFile(pubPath, []byte(keypair.Public), 0644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(keypair.Private), 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	return keypair, nil
}

var (
	mdLinkPattern  = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	hashtagPattern = regexp.MustCompile(`#([^0-9\s#-][^.\s#]*)`)
	handlePattern  = regexp.MustCompile(`@([a-zA-Z0-9_]+)@([a-z0-9_.-]+)`)
)

// MarkdownLinksToHTML converts Markdown links [text](url) to HTML <a> tags
func MarkdownLinksToHTML(text string) string {
	result := mdLinkPattern.ReplaceAllStringFunc(text, func(match string) string {
		matches := mdLinkPattern.FindStringSubmatch(match)
		if len(matches) == 3 {
			linkText := html.EscapeString(matches[1])
			linkURL := html.EscapeString(matches[2])
			return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`, linkURL, linkText)
		}
		return match
	})

	return result
}

// LinkFediverseHandles rewrites @user@domain handles into Markdown links
// pointing at https://domain/@user.
func LinkFediverseHandles(text string) string {
	return handlePattern.ReplaceAllString(text, `[@$1@$2](https://$2/@$1)`)
}

// RenderContent turns message text into the HTML served in Note documents:
// fediverse handles become links, Markdown links become anchors, newlines
// become <br/>.
func RenderContent(text string) string {
	rendered := MarkdownLinksToHTML(LinkFediverseHandles(text))
	rendered = strings.ReplaceAll(strings.TrimRight(rendered, "\n"), "\n", "<br/>")
	return fmt.Sprintf("<p>%s</p>", rendered)
}

// FindHashtags returns the tag names of every #tag occurrence in s,
// without the leading #.
func FindHashtags(s string) []string {
	var tags []string
	for _, match := range hashtagPattern.FindAllStringSubmatch(s, -1) {
		tags = append(tags, match[1])
	}
	return tags
}

// ParseHandle splits a @user@domain (or user@domain) handle into its parts.
func ParseHandle(handle string) (username string, domain string, err error) {
	trimmed := strings.TrimPrefix(handle, "@")
	parts := strings.Split(trimmed, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid account handle: %s", handle)
	}
	return parts[0], parts[1], nil
}

// FormatTag applies one of the configured casing conventions to a feed tag.
// The mode must have been validated at startup.
func FormatTag(mode, tag string) string {
	words := splitWords(tag)
	if len(words) == 0 {
		return tag
	}

	switch mode {
	case TagFormatSnake:
		for i, w := range words {
			words[i] = strings.ToLower(w)
		}
		return strings.Join(words, "_")
	case TagFormatPascal:
		for i, w := range words {
			words[i] = capitalize(w)
		}
		return strings.Join(words, "")
	default: // camelCase
		for i, w := range words {
			if i == 0 {
				words[i] = strings.ToLower(w)
			} else {
				words[i] = capitalize(w)
			}
		}
		return strings.Join(words, "")
	}
}

func splitWords(s string) []string {
	var words []string
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	}) {
		words = append(words, w)
	}
	return words
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}
