package trial

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCSV_Empty(t *testing.T) {
	out, err := ToCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "\r\n", out)
}

func TestToCSV_UnionOfColumns(t *testing.T) {
	trials := []Trial{
		New(Field{"rt", 512}, Field{"stimulus", "left"}),
		New(Field{"rt", 430.5}, Field{"response", "f"}),
		New(Field{"stimulus", "right"}),
	}

	out, err := ToCSV(trials)
	require.NoError(t, err)

	expected := `"rt","stimulus","response"` + "\r\n" +
		`"512","left",""` + "\r\n" +
		`"430.5","","f"` + "\r\n" +
		`"","right",""` + "\r\n"
	assert.Equal(t, expected, out)
}

func TestToCSV_Escaping(t *testing.T) {
	trials := []Trial{
		New(Field{`say "hi"`, `he said "no", then left`}),
	}

	out, err := ToCSV(trials)
	require.NoError(t, err)
	assert.Equal(t, `"say ""hi"""`+"\r\n"+`"he said ""no"", then left"`+"\r\n", out)
}

func TestToCSV_ValueFormatting(t *testing.T) {
	trials := []Trial{
		New(
			Field{"nil", nil},
			Field{"bool", true},
			Field{"int", int64(-3)},
			Field{"float", 0.25},
			Field{"whole", float64(1200)},
			Field{"big", 1e21},
			Field{"tiny", 1.5e-7},
			Field{"nan", math.NaN()},
			Field{"list", []interface{}{"a", 1.0}},
			Field{"object", map[string]interface{}{"x": 1.0}},
		),
	}

	out, err := ToCSV(trials)
	require.NoError(t, err)

	expected := `"nil","bool","int","float","whole","big","tiny","nan","list","object"` + "\r\n" +
		`"null","true","-3","0.25","1200","1e+21","1.5e-7","NaN","[""a"",1]","{""x"":1}"` + "\r\n"
	assert.Equal(t, expected, out)
}

func TestToCSV_Unencodable(t *testing.T) {
	trials := []Trial{
		New(Field{"ch", make(chan int)}),
	}

	_, err := ToCSV(trials)
	assert.Error(t, err)
}

func TestFormatFloat_Exponent(t *testing.T) {
	for in, expected := range map[float64]string{
		1e-7:     "1e-7",
		-2.5e-10: "-2.5e-10",
		1e21:     "1e+21",
		1.25e100: "1.25e+100",
		1e-6:     "0.000001",
		0:        "0",
	} {
		assert.Equal(t, expected, formatFloat(in), "%v", in)
	}
}
