package floatfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	SetCommaFloat(false)
	assert.Equal(t, "1.5", Format(1.5))
	assert.Equal(t, "2", Format(2.0))

	SetCommaFloat(true)
	assert.Equal(t, "1,5", Format(1.5))
	SetCommaFloat(false)
}

func TestFormatOpt(t *testing.T) {
	SetCommaFloat(false)
	assert.Equal(t, "--", FormatOpt(nil))
	v := 0.25
	assert.Equal(t, "0.25", FormatOpt(&v))
}

func TestJoin(t *testing.T) {
	SetCommaFloat(false)
	a, b := 1.0, 3.5
	assert.Equal(t, "1; ; 3.5", Join([]*float64{&a, nil, &b}, "; "))
}
