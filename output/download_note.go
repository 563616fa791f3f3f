package output

import (
	"fmt"
	"os"
)

const DownloadNoteFileName = "pdr_output_url.txt"

func DownloadNote(url string) string {
	return "Download the file from:\n" + url
}

func CreateDownloadNote(path, url string) error {
	if err := os.WriteFile(path, []byte(DownloadNote(url)), 0o644); err != nil {
		return fmt.Errorf("failed to write download note: %w", err)
	}
	return nil
}
