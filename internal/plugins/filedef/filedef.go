// Package filedef registers sensors declared in YAML definition files. Each
// file in the definitions directory describes one sensor backed by a single
// readable file (a thermal zone, a GPIO value, a status flag), which covers
// the long tail of host values that do not justify a dedicated plugin.
package filedef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edgehub/sensorhub/internal/hub"
	"github.com/edgehub/sensorhub/internal/sensorfw"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Definition is one YAML sensor definition.
type Definition struct {
	Name     string  `yaml:"name"`
	Path     string  `yaml:"path"`
	Unit     string  `yaml:"unit"`
	Kind     string  `yaml:"kind"` // boolean, numeric, string or json
	ReadOnce bool    `yaml:"readOnce"`
	Source   string  `yaml:"source"`
	Scale    float64 `yaml:"scale"` // numeric only; 0 means 1
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("filedef: definition must have a name")
	}
	if d.Path == "" {
		return fmt.Errorf("filedef: %s: definition must have a path", d.Name)
	}
	if d.Source == "" {
		return fmt.Errorf("filedef: %s: definition must have a source file", d.Name)
	}
	if _, err := hub.ParseKind(d.Kind); err != nil {
		return fmt.Errorf("filedef: %s: %w", d.Name, err)
	}
	return nil
}

// Load reads every .yaml/.yml file under dir. A missing directory is not an
// error; it just means no file-defined sensors.
func Load(dir string) ([]Definition, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("filedef: read definitions directory %s: %w", dir, err)
	}

	var defs []Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("filedef: read %s: %w", path, err)
		}
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("filedef: parse %s: %w", path, err)
		}
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("filedef: %s: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Register loads the definitions under dir and registers each one.
func Register(fw *sensorfw.Framework, dir string, logger *logrus.Logger) error {
	defs, err := Load(dir)
	if err != nil {
		return err
	}

	for i := range defs {
		def := &defs[i]
		kind, _ := hub.ParseKind(def.Kind) // validated by Load

		desc, err := json.Marshal(sensorfw.Descriptor{
			Name:     def.Name,
			Path:     def.Path,
			ReadOnce: def.ReadOnce,
			Unit:     def.Unit,
		})
		if err != nil {
			return fmt.Errorf("filedef: descriptor for %s: %w", def.Path, err)
		}

		cb := sensorfw.Callbacks{}
		switch kind {
		case hub.KindBoolean:
			cb.SampleBool = sampleBool
		case hub.KindNumeric:
			cb.SampleNumeric = sampleNumeric
		case hub.KindString:
			cb.SampleString = sampleString
		case hub.KindJSON:
			cb.SampleJSON = sampleString // raw file contents, plugin-defined JSON
		}

		if _, err := fw.Register(desc, kind, cb, def); err != nil {
			logger.WithError(err).WithField("path", def.Path).Error("filedef: registering sensor failed")
			continue
		}
		logger.WithFields(logrus.Fields{
			"path":   def.Path,
			"kind":   def.Kind,
			"source": def.Source,
		}).Info("filedef: sensor registered")
	}
	return nil
}

func readSource(pluginCtx any) (*Definition, string, error) {
	def := pluginCtx.(*Definition)
	data, err := os.ReadFile(def.Source)
	if err != nil {
		return def, "", err
	}
	return def, strings.TrimSpace(string(data)), nil
}

func sampleNumeric(pluginCtx any) (float64, error) {
	def, raw, err := readSource(pluginCtx)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("filedef: %s: %w", def.Source, err)
	}
	if def.Scale != 0 {
		v *= def.Scale
	}
	return v, nil
}

func sampleBool(pluginCtx any) (bool, error) {
	_, raw, err := readSource(pluginCtx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(raw) {
	case "1", "true", "on", "yes", "enabled":
		return true, nil
	default:
		return false, nil
	}
}

func sampleString(pluginCtx any) (string, error) {
	_, raw, err := readSource(pluginCtx)
	return raw, err
}
