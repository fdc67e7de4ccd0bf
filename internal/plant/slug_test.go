package plant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Monstera Deliciosa", "monstera_deliciosa"},
		{"Test Plant #1 (Variety A)", "test_plant_1_variety_a"},
		{"  spaced  out  ", "spaced_out"},
		{"already_slugged", "already_slugged"},
		{"Ctenanthe burle-marxii", "ctenanthe_burle_marxii"},
		{"Begonia 'Rex'", "begonia_rex"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "input %q", tt.in)
	}
}

func TestSlugifyStripsDiacritics(t *testing.T) {
	assert.Equal(t, "echeveria_desmetiana", Slugify("Echevería Desmetiana"))
	assert.Equal(t, "senecio_konigs", Slugify("Senecio Königs"))
}

func TestSlugifyWithSeparator(t *testing.T) {
	assert.Equal(t, "ficus lyrata", SlugifyWithSeparator("Ficus%Lyrata", " "))
	assert.Equal(t, "a-b-c", SlugifyWithSeparator("A B C", "-"))
}

func TestSlugifyIdempotent(t *testing.T) {
	once := Slugify("Test Plant #1 (Variety A)")
	assert.Equal(t, once, Slugify(once))
}
