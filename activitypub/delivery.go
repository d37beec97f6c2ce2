package activitypub

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deemkeen/fedifeed/domain"
	"github.com/deemkeen/fedifeed/util"
)

// DeliveryError is a non-2xx answer from a remote inbox. Delivery is
// at-most-once: the caller decides whether to log and move on.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("got HTTP %d status code, message was: %s", e.StatusCode, e.Body)
}

var deliveryClient = &http.Client{Timeout: 30 * time.Second}

// Deliver signs and POSTs one activity to one remote inbox. The activity is
// given an @context when it has none; the Digest, Host and Date headers plus
// the request target are what gets signed.
func Deliver(self *domain.LocalActor, inboxURI string, activity interface{}) error {
	body, err := marshalWithContext(activity)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", inboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", MimeActivityJSON)
	req.Header.Set("Accept", MimeActivityJSON)
	req.Header.Set("User-Agent", util.GetNameAndVersion())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Digest", sha256Digest(body))

	if err := SignRequest(req, self.PrivateKeyPem, self.KeyID()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := deliveryClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &DeliveryError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return nil
}

// marshalWithContext serializes the activity, inserting the default
// @context when the payload carries none.
func marshalWithContext(activity interface{}) ([]byte, error) {
	body, err := json.Marshal(activity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("activity is not a JSON object: %w", err)
	}

	if _, ok := fields["@context"]; ok {
		return body, nil
	}

	context, _ := json.Marshal(domain.ContextActivityStreams)
	fields["@context"] = context

	return json.Marshal(fields)
}

func sha256Digest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}
