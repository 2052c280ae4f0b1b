package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/property-verifier/constants"
	"github.com/joseph-ayodele/property-verifier/internal/fields"
	"github.com/joseph-ayodele/property-verifier/internal/storage"
)

type ocrOutput struct {
	File       string        `json:"file"`
	Method     string        `json:"method"`
	Pages      int           `json:"pages"`
	Confidence float32       `json:"confidence"`
	ElapsedMS  int64         `json:"elapsed_ms"`
	Warnings   []string      `json:"warnings,omitempty"`
	Fields     fields.Fields `json:"fields"`
	Text       string        `json:"text"`
}

// newOCRCmd runs text and field extraction only, without the LLM.
func newOCRCmd(opts *rootOptions) *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "ocr <file>",
		Short: "Extract text and regex fields from a document without calling the LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if !storage.IsValidFile(path) {
				return fmt.Errorf("%s: only PDF, JPG and PNG files are supported", args[0])
			}
			dt, err := constants.ParseDocumentType(docType)
			if err != nil {
				return err
			}

			x, err := newOCR(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer func() { _ = x.Close() }()

			res, err := x.Extract(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("text extraction failed: %w", err)
			}
			defer res.Cleanup()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ocrOutput{
				File:       filepath.Base(path),
				Method:     res.Method,
				Pages:      res.Pages,
				Confidence: res.Confidence,
				ElapsedMS:  res.Duration.Milliseconds(),
				Warnings:   res.Warnings,
				Fields:     fields.Extract(res.Text, dt),
				Text:       res.Text,
			})
		},
	}
	cmd.Flags().StringVarP(&docType, "type", "t", constants.DefaultDocumentType.String(), "Rent Agreement, Title Deed or NOC")
	return cmd
}
