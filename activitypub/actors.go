package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/deemkeen/fedifeed/util"
)

const MimeActivityJSON = "application/activity+json"

// ErrActorNotFound covers every way a remote actor can fail to resolve:
// webfinger miss, non-2xx fetch, unusable document.
var ErrActorNotFound = errors.New("actor not found")

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Actor is a remote actor document, reduced to the fields this server uses.
type Actor struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	Followers         string `json:"followers"`
	PublicKey         struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

type webfingerResponse struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// ResolveActorByHandle looks up username@domain over webfinger and fetches
// the actor document behind the rel=self link. Nothing is cached; every call
// goes over the network.
func ResolveActorByHandle(domain, username string) (*Actor, error) {
	webfingerURL := fmt.Sprintf("https://%s/.well-known/webfinger?resource=%s",
		domain, url.QueryEscape(fmt.Sprintf("acct:%s@%s", username, domain)))

	body, err := fetchJSON(webfingerURL)
	if err != nil {
		return nil, err
	}

	var webfinger webfingerResponse
	if err := json.Unmarshal(body, &webfinger); err != nil {
		return nil, fmt.Errorf("%w: invalid webfinger response: %v", ErrActorNotFound, err)
	}

	for _, link := range webfinger.Links {
		if link.Rel == "self" && link.Type == MimeActivityJSON {
			return ResolveActorByIRI(link.Href)
		}
	}

	return nil, fmt.Errorf("%w: no self link for %s@%s", ErrActorNotFound, username, domain)
}

// ResolveActorByIRI fetches an actor document directly.
func ResolveActorByIRI(href string) (*Actor, error) {
	body, err := fetchJSON(href)
	if err != nil {
		return nil, err
	}

	var actor Actor
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("%w: invalid actor document at %s: %v", ErrActorNotFound, href, err)
	}

	return &actor, nil
}

func fetchJSON(href string) ([]byte, error) {
	req, err := http.NewRequest("GET", href, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActorNotFound, err)
	}

	req.Header.Set("Accept", MimeActivityJSON)
	req.Header.Set("User-Agent", util.GetNameAndVersion())

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActorNotFound, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrActorNotFound, href, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrActorNotFound, err)
	}

	return body, nil
}
