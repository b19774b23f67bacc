package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := CreateMerchantRequest{ID: "  m_1  ", Name: " My Shop "}
	SanitizeStruct(&req)

	assert.Equal(t, "m_1", req.ID)
	assert.Equal(t, "My Shop", req.Name)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := RejectWithdrawalRequest{Reason: "suspicious <script>alert('x')</script> activity"}
	SanitizeStruct(&req)

	assert.Contains(t, req.Reason, "&lt;script&gt;")
	assert.NotContains(t, req.Reason, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	url := "  https://example.com/webhook  "
	req := CreateMerchantRequest{Name: "Bob Shop", WebhookURL: &url}
	SanitizeStruct(&req)

	assert.Equal(t, "https://example.com/webhook", *req.WebhookURL)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := CreateMerchantRequest{Name: "Carol Shop"}
	SanitizeStruct(&req)
	assert.Nil(t, req.WebhookURL)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	req := CreateMerchantRequest{Name: " x "}
	SanitizeStruct(req)
	assert.Equal(t, " x ", req.Name)
}

// --- custom validator tests ---

func TestValidateDecimalAmount(t *testing.T) {
	tests := []struct {
		amount string
		valid  bool
	}{
		{"100", true},
		{"0.000001", true},
		{"12.5", true},
		{"0", false},
		{"-1", false},
		{"1.0000001", false},
		{"abc", false},
		{"1e3", true},
		{"99999999999999.999999", true},
		{"100000000000000", false},
		{"1e30", false},
		{"123456789012345678901234567890", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(WithdrawalRequest{Amount: tt.amount})
			assert.Equal(t, tt.valid, err == nil, "err: %v", err)
		})
	}
}

func TestValidateEVMAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{"lowercase", "0x52908400098527886e0f7030069857d2e4169ee7", true},
		{"checksummed", "0x52908400098527886E0F7030069857D2E4169EE7", true},
		{"empty is optional", "", true},
		{"too short", "0x1234", false},
		{"not hex", "0xZZ908400098527886e0f7030069857d2e4169ee7", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(WithdrawalRequest{Amount: "1", DestinationAddress: tt.address})
			assert.Equal(t, tt.valid, err == nil, "err: %v", err)
		})
	}
}

func TestValidateSafeIDAndURL(t *testing.T) {
	bad := "javascript:alert(1)"
	good := "https://merchant.example.com/hooks"

	assert.NoError(t, binding.Validator.ValidateStruct(CreateMerchantRequest{ID: "m_1.prod", Name: "Shop", WebhookURL: &good}))
	assert.Error(t, binding.Validator.ValidateStruct(CreateMerchantRequest{ID: "m 1", Name: "Shop"}))
	assert.Error(t, binding.Validator.ValidateStruct(CreateMerchantRequest{Name: "Shop", WebhookURL: &bad}))
}

func TestPixWebhookRequest_Status(t *testing.T) {
	assert.NoError(t, binding.Validator.ValidateStruct(PixWebhookRequest{PaymentID: "pay_1", Status: "PAID"}))
	assert.Error(t, binding.Validator.ValidateStruct(PixWebhookRequest{PaymentID: "pay_1", Status: "PENDING"}))
}
