package model

import (
	"strings"

	"github.com/jinzhu/copier"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ConsumableIndexes locate consumable values in the ordered list of percentage tokens
// parsed from a device status page. A nil index means the model has no such consumable.
type ConsumableIndexes struct {
	Toner   *int `mapstructure:"toner" yaml:"toner"`
	Kit     *int `mapstructure:"kit" yaml:"kit"`
	Imaging *int `mapstructure:"imaging" yaml:"imaging"`
}

// ConsumableMap is the immutable table of model name to token indexes.
//
// Model names are matched case-insensitively, configuration loaders lowercase map keys.
type ConsumableMap struct {
	models map[string]ConsumableIndexes
	names  []string
}

func idx(i int) *int { return &i }

// DefaultConsumableIndexes is the built-in table for the supported Lexmark models.
func DefaultConsumableIndexes() map[string]ConsumableIndexes {
	return map[string]ConsumableIndexes{
		"Lexmark MX611dhe": {Toner: idx(0), Kit: idx(2), Imaging: idx(3)},
		"Lexmark X466de":   {Toner: idx(0), Kit: idx(2), Imaging: idx(3)},
		"Lexmark X464de":   {Toner: idx(0), Kit: idx(2), Imaging: idx(3)},
		"Lexmark MX710":    {Toner: idx(0), Kit: idx(2), Imaging: idx(4)},
		"Lexmark MS811":    {Toner: idx(0), Kit: idx(2), Imaging: idx(4)},
		"Lexmark MS812":    {Toner: idx(0), Kit: idx(2), Imaging: idx(4)},
		"Lexmark T654":     {Toner: idx(0), Kit: nil, Imaging: idx(2)},
	}
}

// NewConsumableMap returns a ConsumableMap holding a deep copy of the given table,
// later changes to the argument are not visible through the returned map.
func NewConsumableMap(models map[string]ConsumableIndexes) (ConsumableMap, error) {
	cp := map[string]ConsumableIndexes{}
	if len(models) == 0 {
		return ConsumableMap{models: cp}, nil
	}

	if err := copier.CopyWithOption(&cp, &models, copier.Option{DeepCopy: true}); err != nil {
		return ConsumableMap{}, err
	}

	c := ConsumableMap{models: make(map[string]ConsumableIndexes, len(cp)), names: maps.Keys(cp)}
	for name, indexes := range cp {
		c.models[modelKey(name)] = indexes
	}

	slices.Sort(c.names)

	return c, nil
}

func modelKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Lookup returns the indexes for a model, ok is false for an unsupported model.
func (c ConsumableMap) Lookup(model string) (ConsumableIndexes, bool) {
	indexes, ok := c.models[modelKey(model)]
	return indexes, ok
}

// Models returns the supported model names in sorted order.
func (c ConsumableMap) Models() []string {
	return append([]string(nil), c.names...)
}
