package queue

import (
	"encoding/base64"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("enc-1002069"))
	body := []byte(`{"payload":{"topic":"NH-CARE-ENCOUNTER-COMPLETE","partition":1,"offset":101,"key":"` + key + `","timestamp":1648023053240}}`)

	event, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.EncounterID != "enc-1002069" {
		t.Errorf("expected decoded encounter id, got %q", event.EncounterID)
	}
	if event.Topic != "NH-CARE-ENCOUNTER-COMPLETE" {
		t.Errorf("expected topic, got %q", event.Topic)
	}
}

func TestDecodeEvent_BadJSON(t *testing.T) {
	if _, err := DecodeEvent([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestDecodeEvent_BadKey(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"payload":{"key":"%%%"}}`)); err == nil {
		t.Fatal("expected error for non-base64 key")
	}
}
