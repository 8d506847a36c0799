package media

import (
	"fmt"
	"path/filepath"
)

// Artifact file names inside a job's output directory, and scratch files
// inside its upload directory.
const (
	MIDIFile      = "transcription.mid"
	MusicXMLFile  = "transcription.musicxml"
	PDFFile       = "transcription.pdf"
	processedWAV  = "processed.wav"
	isolatedWAV   = "isolated.wav"
	downloadedWAV = "audio.wav"
	rawMIDIFile   = "raw.mid"
)

// Artifact formats as used in download handles.
const (
	FormatMIDI     = "midi"
	FormatMusicXML = "musicxml"
	FormatPDF      = "pdf"
)

// Layout maps job ids onto the upload and output directories.
type Layout struct {
	UploadDir string
	OutputDir string
	URLPrefix string // default "/api/v1"
}

// JobUploadDir returns the scratch directory for a job's fetched media.
func (l Layout) JobUploadDir(jobID string) string {
	return filepath.Join(l.UploadDir, jobID)
}

// JobOutputDir returns the directory holding a job's artifacts.
func (l Layout) JobOutputDir(jobID string) string {
	return filepath.Join(l.OutputDir, jobID)
}

// ArtifactPath returns where the artifact of format is stored, or "" for an
// unknown format.
func (l Layout) ArtifactPath(jobID, format string) string {
	var name string
	switch format {
	case FormatMIDI:
		name = MIDIFile
	case FormatMusicXML:
		name = MusicXMLFile
	case FormatPDF:
		name = PDFFile
	default:
		return ""
	}
	return filepath.Join(l.JobOutputDir(jobID), name)
}

// DownloadURL is the client-facing handle for an artifact.
func (l Layout) DownloadURL(jobID, format string) string {
	prefix := l.URLPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	return fmt.Sprintf("%s/download/%s/%s", prefix, jobID, format)
}
