package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type verifyBody struct {
	UserID string `validate:"required,max=128"`
	OTP    string `validate:"required,otp"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(verifyBody{UserID: "alice", OTP: "123456"}))
}

func TestStruct_OTPTag(t *testing.T) {
	for _, code := range []string{"12345", "1234567", "12a456", " 23456"} {
		err := Struct(verifyBody{UserID: "alice", OTP: code})
		assert.ErrorContains(t, err, "field 'OTP' failed 'otp'", code)
	}
}

func TestStruct_ReportsEveryField(t *testing.T) {
	err := Struct(verifyBody{})
	assert.ErrorContains(t, err, "field 'UserID' failed 'required'")
	assert.ErrorContains(t, err, "field 'OTP' failed 'required'")
}
