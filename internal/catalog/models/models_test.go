package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kiosk/pkg/domain-errors"
)

func TestNewService(t *testing.T) {
	t.Run("accepts sane prices", func(t *testing.T) {
		s, err := NewService(" General exam ", "", decimal.NewFromInt(30000), decimal.NewFromInt(100000), time.Now())
		require.NoError(t, err)
		assert.Equal(t, "General exam", s.Name)
		assert.True(t, s.Active)
		assert.True(t, s.PriceFor(true).Equal(decimal.NewFromInt(30000)))
		assert.True(t, s.PriceFor(false).Equal(decimal.NewFromInt(100000)))
	})

	t.Run("insured price equal to list price is allowed", func(t *testing.T) {
		_, err := NewService("X-ray", "", decimal.NewFromInt(50000), decimal.NewFromInt(50000), time.Now())
		require.NoError(t, err)
	})

	for name, prices := range map[string][2]int64{
		"zero insured price":       {0, 100},
		"negative list price":      {10, -1},
		"insured above list price": {200, 100},
	} {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := NewService("Lab", "", decimal.NewFromInt(prices[0]), decimal.NewFromInt(prices[1]), time.Now())
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}

	t.Run("decodes string and number prices", func(t *testing.T) {
		var req CreateServiceRequest
		require.NoError(t, decodeJSON(`{"name":"Ultrasound","insurance_price":"30000.50","service_price":120000}`, &req))
		require.NoError(t, req.Validate())
		assert.Equal(t, "30000.5", req.InsurancePrice.String())
	})
}
