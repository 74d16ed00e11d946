package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueStates(t *testing.T) {
	absent := Value{}
	assert.True(t, absent.IsAbsent())
	assert.Nil(t, absent.Values())

	empty := List()
	assert.False(t, empty.IsAbsent())
	assert.NotNil(t, empty.Values())
	assert.Len(t, empty.Values(), 0)

	scalar := Scalar("x")
	one, ok := scalar.One()
	assert.True(t, ok)
	assert.Equal(t, "x", one)

	single := List("y")
	one, ok = single.One()
	assert.True(t, ok)
	assert.Equal(t, "y", one)

	_, ok = List("a", "b").One()
	assert.False(t, ok)
	_, ok = empty.One()
	assert.False(t, ok)
}

func TestEntryAttr(t *testing.T) {
	e := Entry{Attrs: map[string]Value{"department": Scalar("IT")}}
	v, ok := e.Attr("department").One()
	assert.True(t, ok)
	assert.Equal(t, "IT", v)
	assert.True(t, e.Attr("missing").IsAbsent())
}

func TestPersonNameParts(t *testing.T) {
	tests := []struct {
		name      string
		givenName string
		surname   string
		want      []string
	}{
		{"simple", "Keanu", "Reeves", []string{"Keanu", "Reeves"}},
		{"double given name", "Anna Marie", "Smith", []string{"Anna", "Marie", "Smith"}},
		{"extra names truncated", "A B C D E", "Last", []string{"A", "B", "C", "D", "Last"}},
		{"given name only", "Cher", "", []string{"Cher", ""}},
		{"empty given name", "", "Solo", []string{"", "Solo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Person{GivenName: tt.givenName, Surname: tt.surname}
			assert.Equal(t, tt.want, p.NameParts())
		})
	}
}
