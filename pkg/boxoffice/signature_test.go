package boxoffice

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

const testWebhookSecret = "sk_test_7f3c"

func TestVerifySignatureAcceptsExactPayload(test *testing.T) {
	test.Parallel()
	payload := []byte(`{"event":"charge.success","data":{"reference":"BX-1","amount":5000}}`)
	signature := SignPayload(payload, testWebhookSecret)
	if !VerifySignature(payload, signature, testWebhookSecret) {
		test.Fatalf("expected signature to verify")
	}
	if !VerifySignature(payload, strings.ToUpper(signature), testWebhookSecret) {
		test.Fatalf("hex case must not matter")
	}
}

func TestVerifySignatureRejectsAnySingleByteChange(test *testing.T) {
	test.Parallel()
	payload := []byte(`{"event":"charge.success","data":{"reference":"BX-1","amount":5000}}`)
	signature := SignPayload(payload, testWebhookSecret)
	for index := range payload {
		tampered := bytes.Clone(payload)
		tampered[index] ^= 0x01
		if VerifySignature(tampered, signature, testWebhookSecret) {
			test.Fatalf("tampered byte %d still verified", index)
		}
	}
}

func TestVerifySignatureRejectsReserializedBody(test *testing.T) {
	test.Parallel()
	payload := []byte(`{"data": {"reference": "BX-1", "amount": 5000}, "event": "charge.success"}`)
	signature := SignPayload(payload, testWebhookSecret)

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		test.Fatalf("decode: %v", err)
	}
	reserialized, err := json.Marshal(decoded)
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	if bytes.Equal(reserialized, payload) {
		test.Fatalf("fixture must change on re-serialization")
	}
	if VerifySignature(reserialized, signature, testWebhookSecret) {
		test.Fatalf("re-serialized body must not verify")
	}
}

func TestVerifySignatureRejectsDegenerateInput(test *testing.T) {
	test.Parallel()
	payload := []byte(`{"ok":true}`)
	signature := SignPayload(payload, testWebhookSecret)
	testCases := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
	}{
		{name: "empty payload", payload: nil, signature: signature, secret: testWebhookSecret},
		{name: "empty signature", payload: payload, signature: "", secret: testWebhookSecret},
		{name: "empty secret", payload: payload, signature: signature, secret: ""},
		{name: "wrong secret", payload: payload, signature: signature, secret: "other"},
		{name: "not hex", payload: payload, signature: "zz" + signature[2:], secret: testWebhookSecret},
		{name: "truncated", payload: payload, signature: signature[:64], secret: testWebhookSecret},
	}
	for _, testCase := range testCases {
		if VerifySignature(testCase.payload, testCase.signature, testCase.secret) {
			test.Fatalf("%s: expected rejection", testCase.name)
		}
	}
}
