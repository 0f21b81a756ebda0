// Package people turns SWAPI people records into flattened rows by resolving
// their film, homeworld, species, starship and vehicle references.
package people

import (
	"fmt"
	"strconv"
	"strings"
)

// Person is a primary record as served at /api/people/{id}/.
type Person struct {
	URL       string   `json:"url"`
	Name      string   `json:"name"`
	BirthYear string   `json:"birth_year"`
	EyeColor  string   `json:"eye_color"`
	Gender    string   `json:"gender"`
	HairColor string   `json:"hair_color"`
	Height    string   `json:"height"`
	Mass      string   `json:"mass"`
	SkinColor string   `json:"skin_color"`
	Homeworld *string  `json:"homeworld"`
	Films     []string `json:"films"`
	Species   []string `json:"species"`
	Starships []string `json:"starships"`
	Vehicles  []string `json:"vehicles"`
}

// Reference is any resource a Person points at. Films carry a title,
// everything else a name.
type Reference struct {
	Title string `json:"title"`
	Name  string `json:"name"`
}

// Row is the flattened, persisted form of a Person.
type Row struct {
	ID        int
	Name      string
	BirthYear string
	EyeColor  string
	Gender    string
	HairColor string
	Height    string
	Mass      string
	SkinColor string
	Films     string
	// Homeworld is nil when the person has no homeworld reference upstream.
	Homeworld *string
	Species   string
	Starships string
	Vehicles  string
}

// ParseID extracts the numeric id from a canonical resource URL
// ("https://swapi.py4e.com/api/people/12/" -> 12).
func ParseID(rawURL string) (int, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(rawURL), "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return 0, fmt.Errorf("%w: %q", ErrBadID, rawURL)
	}

	id, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadID, rawURL)
	}
	return id, nil
}
