// package formatter renders analyzed tracks for the terminal and exports them to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/stemdeck/internal/models"
)

// ExportCuesCSV converts a track's cues to CSV with columns: ID, Label, Type, Time, Start, End, Duration, Color
func ExportCuesCSV(track *models.TrackRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Label", "Type", "Time", "Start", "End", "Duration", "Color"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, cue := range track.Cues {
		kind := cue.Type
		if kind == "" {
			kind = models.CuePoint
		}
		record := []string{
			cue.ID,
			cue.Label,
			string(kind),
			cue.Time,
			optional(cue.StartTime),
			optional(cue.EndTime),
			optional(cue.Duration),
			cue.Color,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a track to a Markdown sheet with optional cover image
func ExportToMarkdown(track *models.TrackRecord, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", track.DisplayTitle())

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	if track.Meta.Artist != "" {
		fmt.Fprintf(&buf, "**Artist**: %s\n", track.Meta.Artist)
	}
	fmt.Fprintf(&buf, "**File**: %s\n", track.Filename())
	fmt.Fprintf(&buf, "**BPM**: %s\n", formatBPM(track.BPM))
	fmt.Fprintf(&buf, "**Key**: %s\n", orDash(track.Key))
	if track.Genre != "" {
		fmt.Fprintf(&buf, "**Genre**: %s\n", track.Genre)
	}
	if track.EnergyLevel != "" {
		fmt.Fprintf(&buf, "**Energy**: %s\n", track.EnergyLevel)
	}
	buf.WriteString("\n")

	buf.WriteString("## Mix Points\n\n")
	buf.WriteString("| Intro End | Drop | Outro Start |\n|---|---|---|\n")
	fmt.Fprintf(&buf, "| %s | %s | %s |\n\n",
		FormatTime(track.MixPoints.IntroEnd), FormatTime(track.MixPoints.Drop), FormatTime(track.MixPoints.OutroStart))

	buf.WriteString("## Descriptors\n\n")
	fmt.Fprintf(&buf, "- Danceability: %.0f%%\n", track.Danceability)
	fmt.Fprintf(&buf, "- Loudness: %.1f dB\n", track.Loudness)
	if track.Texture != "" {
		fmt.Fprintf(&buf, "- Texture: %s\n", track.Texture)
	}
	if track.Descriptors.Mood != "" {
		fmt.Fprintf(&buf, "- Mood: %s\n", track.Descriptors.Mood)
	}
	if !track.Descriptors.DynamicRange.IsZero() {
		fmt.Fprintf(&buf, "- Dynamic range: %s\n", track.Descriptors.DynamicRange)
	}
	buf.WriteString("\n")

	if len(track.Cues) > 0 {
		buf.WriteString("## Cues\n\n")
		for i, cue := range track.Cues {
			fmt.Fprintf(&buf, "%d. %s [%s]\n", i+1, cue.Label, FormatCueTime(cue))
		}
		buf.WriteString("\n")
	}

	if stems := availableStems(track); len(stems) > 0 {
		buf.WriteString("## Stems\n\n")
		for _, id := range stems {
			fmt.Fprintf(&buf, "- %s: `%s`\n", id.Label(), track.StemFile(id))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a track to a plain text summary
func ExportToText(track *models.TrackRecord) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Track: %s\n", track.DisplayTitle())
	if track.Meta.Artist != "" {
		fmt.Fprintf(&buf, "Artist: %s\n", track.Meta.Artist)
	}
	fmt.Fprintf(&buf, "File: %s\n", track.Filename())
	fmt.Fprintf(&buf, "BPM: %s  Key: %s\n", formatBPM(track.BPM), orDash(track.Key))
	fmt.Fprintf(&buf, "Intro end: %s  Drop: %s  Outro start: %s\n",
		FormatTime(track.MixPoints.IntroEnd), FormatTime(track.MixPoints.Drop), FormatTime(track.MixPoints.OutroStart))
	fmt.Fprintf(&buf, "Danceability: %s %.0f%%\n", RenderBar(track.Danceability, 20), track.Danceability)
	if len(track.Waveform) > 0 {
		fmt.Fprintf(&buf, "Waveform: %s\n", Sparkline(track.Waveform, 48))
	}
	fmt.Fprintf(&buf, "Cues: %d\n", len(track.Cues))

	for i, cue := range track.Cues {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, FormatCueTime(cue), cue.Label)
	}

	return buf.Bytes(), nil
}

// DecodeCoverArt decodes a base64 data URL into its bytes and a file extension.
func DecodeCoverArt(dataURL string) ([]byte, string, error) {
	if dataURL == "" {
		return nil, "", fmt.Errorf("empty cover art")
	}
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("cover art is not a base64 data URL")
	}

	mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	ext := ".img"
	switch mime {
	case "image/jpeg", "image/jpg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode cover art: %w", err)
	}
	return data, ext, nil
}

// ToMetadataJSON generates an indented JSON copy of the track payload as received
func ToMetadataJSON(track *models.TrackRecord) ([]byte, error) {
	raw, err := track.Encode()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to indent track JSON: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	CuesFile     string
	MetadataFile string
}

// WriteCSVExport exports a track's cues to CSV with the full track payload alongside.
//
// Defaults to the track filename stem as the base & creates {base}_cues.csv and {base}_metadata.json
func WriteCSVExport(track *models.TrackRecord, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = baseName(track)
	}

	csvData, err := ExportCuesCSV(track)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	cuesFile := baseFilepath + "_cues.csv"
	if err := os.WriteFile(cuesFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(track)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		CuesFile:     cuesFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport exports a track sheet to a dedicated directory.
//
// Directory name defaults to the track filename stem.
// Embedded cover art, when present and decodable, is written next to the sheet.
// Creates a directory structure: {dir}/README.md and optionally {dir}/cover.{ext}
func WriteMarkdownExport(track *models.TrackRecord, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = baseName(track)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if track.Meta.CoverArt != "" {
		imageData, ext, err := DecodeCoverArt(track.Meta.CoverArt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to decode cover art: %v\n", err)
		} else {
			coverImageFilename = "cover" + ext
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(track, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports a track summary to plain text.
//
// Defaults to {filename stem}.txt as the filename.
func WriteTextExport(track *models.TrackRecord, path string) (string, error) {
	if path == "" {
		path = baseName(track) + ".txt"
	}

	textData, err := ExportToText(track)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

func availableStems(track *models.TrackRecord) []models.StemID {
	var ids []models.StemID
	for _, id := range models.Stems {
		if track.StemFile(id) != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func baseName(track *models.TrackRecord) string {
	name := filepath.Base(track.Filename())
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatBPM(bpm float64) string {
	if bpm <= 0 {
		return "-"
	}
	return strconv.FormatFloat(bpm, 'f', -1, 64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
