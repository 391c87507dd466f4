package tsp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CitiesFile is the YAML layout of a problem instance:
//
//	name: square
//	cities:
//	  - [0, 0]
//	  - [0, 1]
type CitiesFile struct {
	Name   string      `yaml:"name,omitempty"`
	Cities [][]float64 `yaml:"cities"`
}

// LoadCities reads a problem instance from a YAML file.
func LoadCities(path string) ([]City, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cities file: %w", err)
	}
	return ParseCities(data)
}

// ParseCities decodes a problem instance.
func ParseCities(data []byte) ([]City, error) {
	var f CitiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cities: %w", err)
	}
	if len(f.Cities) == 0 {
		return nil, fmt.Errorf("no cities defined")
	}

	cities := make([]City, 0, len(f.Cities))
	for i, c := range f.Cities {
		if len(c) != 2 {
			return nil, fmt.Errorf("city %d: want [x, y], got %d coordinates", i, len(c))
		}
		cities = append(cities, City{c[0], c[1]})
	}
	return cities, nil
}

// DemoCities is the instance solved when no cities file is given.
var DemoCities = []City{
	{1, 1}, {8, 1}, {8, 8}, {1, 8},
	{2, 2}, {7, 2}, {7, 7}, {2, 7},
	{3, 3}, {6, 3}, {6, 6}, {3, 6},
}
