package domain

import (
	"fmt"

	"github.com/deemkeen/fedifeed/util"
)

// LocalActor is the single federated identity this server exposes. It is
// assembled once at startup from the configuration and never mutated; all of
// its IRIs derive from the username and the site domain.
type LocalActor struct {
	Username      string
	DisplayName   string
	Summary       string
	Avatar        string
	Header        string
	Domain        string
	Attachments   map[string]string
	Following     []string
	PublicKeyPem  string
	PrivateKeyPem string
}

func NewLocalActor(conf *util.AppConfig, keypair *util.RsaKeyPair) *LocalActor {
	displayName := conf.Actor.DisplayName
	if displayName == "" {
		displayName = conf.Actor.Username
	}

	return &LocalActor{
		Username:      conf.Actor.Username,
		DisplayName:   displayName,
		Summary:       conf.Actor.Summary,
		Avatar:        conf.Actor.Avatar,
		Header:        conf.Actor.Header,
		Domain:        conf.Conf.Domain,
		Attachments:   conf.Actor.Attachments,
		Following:     conf.Actor.Following,
		PublicKeyPem:  keypair.Public,
		PrivateKeyPem: keypair.Private,
	}
}

func (a *LocalActor) ID() string {
	return fmt.Sprintf("https://%s/actors/%s", a.Domain, a.Username)
}

func (a *LocalActor) KeyID() string {
	return a.ID() + "#main-key"
}

func (a *LocalActor) InboxIRI() string {
	return a.ID() + "/inbox"
}

func (a *LocalActor) OutboxIRI() string {
	return a.ID() + "/outbox"
}

func (a *LocalActor) FollowersIRI() string {
	return a.ID() + "/followers"
}

func (a *LocalActor) FollowingIRI() string {
	return a.ID() + "/following"
}

// InboxPath is the request path signatures are verified against.
func (a *LocalActor) InboxPath() string {
	return fmt.Sprintf("/actors/%s/inbox", a.Username)
}

func (a *LocalActor) Handle() string {
	return fmt.Sprintf("%s@%s", a.Username, a.Domain)
}
