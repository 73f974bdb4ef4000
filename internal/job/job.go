// Package job reads the JSON job description that names the plugin chain
// applied to every file of a run.
package job

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/isanan39s/vstchain/internal/chain"
)

// Param is one parameter override of a plugin.
type Param struct {
	ID    *int     `json:"id"`
	Value *float64 `json:"value"`
}

// Plugin is one entry of the chain list.
type Plugin struct {
	Path   string  `json:"path"`
	Bank   string  `json:"bank,omitempty"`
	Params []Param `json:"params,omitempty"`
}

// File is the job file document.
type File struct {
	Name  string   `json:"name,omitempty"`
	Chain []Plugin `json:"chain"`
}

// Load reads the job file at filePath. Relative plugin paths are resolved
// against the directory of the job file.
func Load(filePath string) (chain.Spec, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return chain.Spec{}, errors.Wrapf(err, "read job %v", filePath)
	}

	spec, err := Parse(data, filepath.Dir(filePath))
	if err != nil {
		return chain.Spec{}, errors.Wrapf(err, "parse job %v", filePath)
	}
	return spec, nil
}

// Parse decodes a job document.
func Parse(data []byte, baseDir string) (chain.Spec, error) {
	var doc File
	if err := json.Unmarshal(data, &doc); err != nil {
		return chain.Spec{}, errors.Wrapf(err, "decode json")
	}
	if len(doc.Chain) == 0 {
		return chain.Spec{}, errors.New("no plugins in chain")
	}

	var spec chain.Spec
	for i, p := range doc.Chain {
		if p.Path == "" {
			return chain.Spec{}, errors.Errorf("plugin #%v has no path", i)
		}

		stage := chain.Stage{Path: resolve(baseDir, p.Path)}
		if p.Bank != "" {
			stage.Bank = resolve(baseDir, p.Bank)
		}
		for j, param := range p.Params {
			if param.ID == nil || param.Value == nil {
				return chain.Spec{}, errors.Errorf("plugin #%v param #%v needs id and value", i, j)
			}
			stage.Overrides = append(stage.Overrides, chain.ParameterOverride{
				PluginIndex: i, ID: *param.ID, Value: *param.Value,
			})
		}
		spec.Stages = append(spec.Stages, stage)
	}
	return spec, nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
