package audiofile

import (
	"path/filepath"
	"strings"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/isanan39s/vstchain/internal/audio"
)

// Extensions lists the input extensions picked up from a folder.
var Extensions = []string{".wav", ".aiff", ".aif", ".flac", ".ogg"}

// Supported reports whether filePath has a readable container extension.
func Supported(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func containerOf(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".wav":
		return ContainerWAV
	case ".aiff", ".aif":
		return ContainerAIFF
	case ".flac":
		return ContainerFLAC
	case ".ogg":
		return ContainerOGG
	}
	return ""
}

// Open creates the reader matching the extension of filePath.
func Open(filePath string) (Reader, error) {
	switch containerOf(filePath) {
	case ContainerWAV:
		return openWAV(filePath)
	case ContainerAIFF:
		return openAIFF(filePath)
	case ContainerFLAC:
		return openFLAC(filePath)
	case ContainerOGG:
		return openOGG(filePath)
	}
	return nil, errors.Errorf("unsupported audio format: %v", filepath.Ext(filePath))
}

// OutputContainer returns the container written for an input container. WAV
// and AIFF are mirrored; FLAC and OGG have no encoder and fall back to WAV.
func OutputContainer(input string) string {
	if input == ContainerAIFF {
		return ContainerAIFF
	}
	return ContainerWAV
}

// OutputPath maps an input file to its destination inside outDir, switching
// the extension when the container is not mirrored.
func OutputPath(inPath, outDir string) string {
	base := filepath.Base(inPath)
	in := containerOf(inPath)
	if in != "" && OutputContainer(in) != in {
		base = strings.TrimSuffix(base, filepath.Ext(base)) + "." + OutputContainer(in)
	}
	return filepath.Join(outDir, base)
}

// Compatible checks that a stream of format can be written to outPath
// without changing its sample layout.
func Compatible(format audio.Format, outPath string) error {
	want := containerOf(outPath)
	if want != ContainerWAV && want != ContainerAIFF {
		return errors.Errorf("no encoder for %v", filepath.Ext(outPath))
	}
	if format.Container != "" && OutputContainer(format.Container) != want {
		return errors.Errorf("%v input cannot be written as %v", format.Container, want)
	}
	if _, err := newPCMCodec(format.BitDepth, false); err != nil {
		return err
	}
	if format.NumChannels <= 0 || format.SampleRate <= 0 {
		return errors.Errorf("invalid stream %v", format)
	}
	return nil
}

// Create opens a writer for outPath using format's rate, channels and depth.
func Create(outPath string, format audio.Format) (Writer, error) {
	if err := Compatible(format, outPath); err != nil {
		return nil, errors.Wrapf(err, "create %v", outPath)
	}

	if containerOf(outPath) == ContainerAIFF {
		return createAIFF(outPath, format)
	}
	return createWAV(outPath, format)
}
