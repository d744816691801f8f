package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosk/pkg/domain"
	dErrors "kiosk/pkg/domain-errors"
)

var today = domain.NewDay(2026, time.October, 18)

func params() Params {
	return Params{
		CitizenID: "079123456789",
		FullName:  " Vo Thi F ",
		DOB:       domain.NewDay(2000, time.October, 19),
		Gender:    domain.GenderFemale,
		Phone:     "0912345678",
	}
}

func TestNewPatient(t *testing.T) {
	t.Run("defaults ethnicity and starts uninsured", func(t *testing.T) {
		p, err := NewPatient(params(), today, time.Now())
		require.NoError(t, err)
		assert.Equal(t, DefaultEthnicity, p.Ethnicity)
		assert.Equal(t, "Vo Thi F", p.FullName)
		assert.False(t, p.IsInsurance)
	})

	t.Run("rejects future dob", func(t *testing.T) {
		pp := params()
		pp.DOB = today.AddDays(1)
		_, err := NewPatient(pp, today, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects implausible dob", func(t *testing.T) {
		pp := params()
		pp.DOB = domain.NewDay(1850, time.January, 1)
		_, err := NewPatient(pp, today, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects malformed phone", func(t *testing.T) {
		pp := params()
		pp.Phone = "12345"
		_, err := NewPatient(pp, today, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestAge(t *testing.T) {
	p, err := NewPatient(params(), today, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 25, p.Age(today), "birthday tomorrow")
	assert.Equal(t, 26, p.Age(today.AddDays(1)))
}

func TestApply(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	p, err := NewPatient(params(), today, created)
	require.NoError(t, err)
	p.IsInsurance = true

	t.Run("updates only supplied fields", func(t *testing.T) {
		addr := " 12 Le Loi "
		next, changed, err := p.Apply(Patch{Address: &addr}, today, now)
		require.NoError(t, err)
		assert.Equal(t, []string{"address"}, changed)
		assert.Equal(t, "12 Le Loi", next.Address)
		assert.Equal(t, p.FullName, next.FullName)
		assert.True(t, next.IsInsurance, "flag is not patchable")
		assert.Equal(t, now, next.UpdatedAt)
		assert.Empty(t, p.Address, "receiver untouched")
	})

	t.Run("unchanged values are not reported", func(t *testing.T) {
		name := p.FullName
		next, changed, err := p.Apply(Patch{FullName: &name}, today, now)
		require.NoError(t, err)
		assert.Empty(t, changed)
		assert.Equal(t, created, next.UpdatedAt)
	})

	t.Run("patched values are validated", func(t *testing.T) {
		future := today.AddDays(2)
		_, _, err := p.Apply(Patch{DOB: &future}, today, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestUpdatePatientRequest(t *testing.T) {
	empty := UpdatePatientRequest{}
	assert.True(t, dErrors.HasCode(empty.Validate(), dErrors.CodeValidation))

	blank := ""
	assert.True(t, dErrors.HasCode((&UpdatePatientRequest{FullName: &blank}).Validate(), dErrors.CodeValidation))

	phone := "+84 912 345 678"
	patch, err := (&UpdatePatientRequest{Phone: &phone}).Patch()
	require.NoError(t, err)
	assert.Equal(t, "0912345678", *patch.Phone)

	gender := "alien"
	assert.True(t, dErrors.HasCode((&UpdatePatientRequest{Gender: &gender}).Validate(), dErrors.CodeValidation))
}

func TestRegisterPatientRequest(t *testing.T) {
	req := RegisterPatientRequest{
		CitizenID: "079123456789",
		FullName:  "Dang Van G",
		DOB:       "1970-12-01",
		Gender:    "male",
	}
	req.Normalize()
	p, err := req.Params()
	require.NoError(t, err)
	assert.Equal(t, domain.GenderMale, p.Gender)
	assert.Empty(t, p.Phone)

	req.DOB = ""
	assert.True(t, dErrors.HasCode(req.Validate(), dErrors.CodeValidation))
}
