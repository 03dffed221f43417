package store

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/metal-toolbox/printwatch/internal/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrYamlCatalog = errors.New("error in yaml device catalog")
)

// YamlCatalog is a DeviceCatalog read from a YAML file.
//
// The file is read on each ListActiveDevices call, edits take effect on the next poll run.
//
//	devices:
//	  - address: 10.0.0.21
//	    model: Lexmark MX611dhe
//	    site: Warehouse
//	    name: Warehouse office
//	    serial: 7016XXXXXX
//	    active: true
type YamlCatalog struct {
	YamlFile string
}

type yamlCatalogFile struct {
	Devices []model.Device `yaml:"devices"`
}

// NewYamlCatalog returns a YamlCatalog that implements the DeviceCatalog interface.
func NewYamlCatalog(yamlFile string) (*YamlCatalog, error) {
	if yamlFile == "" {
		return nil, errors.Wrap(ErrYamlCatalog, "no catalog file configured")
	}

	return &YamlCatalog{YamlFile: yamlFile}, nil
}

// Devices returns every device in the catalog file.
func (c *YamlCatalog) Devices() ([]model.Device, error) {
	b, err := os.ReadFile(c.YamlFile)
	if err != nil {
		return nil, errors.Wrap(ErrYamlCatalog, err.Error())
	}

	return ParseCatalog(b)
}

// ListActiveDevices implements the DeviceCatalog interface.
func (c *YamlCatalog) ListActiveDevices(_ context.Context) ([]model.Device, error) {
	devices, err := c.Devices()
	if err != nil {
		return nil, err
	}

	return ActiveDevices(devices), nil
}

// ParseCatalog decodes and validates a YAML device catalog.
//
// Every device must carry an address, addresses must be unique.
func ParseCatalog(b []byte) ([]model.Device, error) {
	catalog := &yamlCatalogFile{}
	if err := yaml.Unmarshal(b, catalog); err != nil {
		return nil, errors.Wrap(ErrYamlCatalog, err.Error())
	}

	var merr *multierror.Error

	seen := map[string]int{}

	for idx, device := range catalog.Devices {
		if device.Address == "" {
			merr = multierror.Append(merr, fmt.Errorf("device %d (%s): no address", idx, device.Name))
			continue
		}

		if prev, exists := seen[device.Address]; exists {
			merr = multierror.Append(merr, fmt.Errorf("device %d: address %s duplicates device %d", idx, device.Address, prev))
			continue
		}

		seen[device.Address] = idx
	}

	if err := merr.ErrorOrNil(); err != nil {
		return nil, errors.Wrap(ErrYamlCatalog, err.Error())
	}

	return catalog.Devices, nil
}

// ActiveDevices returns the devices flagged active, in catalog order.
func ActiveDevices(devices []model.Device) []model.Device {
	active := []model.Device{}

	for _, device := range devices {
		if device.Active {
			active = append(active, device)
		}
	}

	return active
}
