// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"certificate-service/internal/infra"
	"certificate-service/internal/payload"
)

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "certctl",
		Short: "Certificate Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("CERTCTL_API_URL")
			}
			apiURL = strings.TrimRight(apiURL, "/")
			httpClient = &http.Client{Timeout: timeout}
		},
		SilenceUsage: true,
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set CERTCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(payloadCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "certctl version %s\n", infra.ServiceVersion)
		},
	}
}

type certificateView struct {
	Identifier  string `json:"identifier"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Course      string `json:"course"`
	University  string `json:"university"`
	IssuedAt    string `json:"issued_at"`
	DocumentRef string `json:"document_ref"`
}

func printCertificate(w io.Writer, c certificateView) {
	fmt.Fprintf(w, "Certificate ID: %s\n", c.Identifier)
	fmt.Fprintf(w, "Student ID:     %s\n", c.StudentID)
	fmt.Fprintf(w, "Student Name:   %s\n", c.StudentName)
	fmt.Fprintf(w, "Course:         %s\n", c.Course)
	fmt.Fprintf(w, "University:     %s\n", c.University)
	fmt.Fprintf(w, "Issued At:      %s\n", c.IssuedAt)
}

// issueCmd は証明書の発行コマンド。
func issueCmd() *cobra.Command {
	var req struct {
		StudentID   string `json:"student_id"`
		StudentName string `json:"student_name"`
		Course      string `json:"course"`
		University  string `json:"university"`
	}
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a certificate for a student and course",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqBody, err := json.Marshal(req)
			if err != nil {
				return err
			}
			body, err := doRequest(http.MethodPost, "/v1/certificates", reqBody, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result struct {
				Identifier  string `json:"identifier"`
				DocumentRef string `json:"document_ref"`
				IssuedAt    string `json:"issued_at"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Issued certificate %s (issued at %s)\n", result.Identifier, result.IssuedAt)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.StudentID, "student-id", "", "Student ID (required)")
	cmd.Flags().StringVar(&req.StudentName, "student-name", "", "Student name (required)")
	cmd.Flags().StringVar(&req.Course, "course", "", "Course name (required)")
	cmd.Flags().StringVar(&req.University, "university", "", "University name (required)")
	for _, f := range []string{"student-id", "student-name", "course", "university"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

// verifyCmd は証明書の検証コマンド。IDまたはスキャンしたQRペイロードで検証する。
func verifyCmd() *cobra.Command {
	var payloadFile string
	cmd := &cobra.Command{
		Use:   "verify [identifier]",
		Short: "Verify a certificate by identifier or scanned QR payload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if payloadFile != "" {
				return verifyPayload(cmd, payloadFile)
			}
			if len(args) != 1 {
				return fmt.Errorf("identifier or --payload-file is required")
			}

			body, err := doRequest(http.MethodGet, "/v1/certificates/"+url.PathEscape(args[0]), nil, http.StatusOK)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var cert certificateView
			if err := json.Unmarshal(body, &cert); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "VALID")
			printCertificate(cmd.OutOrStdout(), cert)
			return nil
		},
	}
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "File containing a scanned QR payload (- for stdin)")
	return cmd
}

func verifyPayload(cmd *cobra.Command, file string) error {
	scanned, err := readInput(cmd, file)
	if err != nil {
		return err
	}
	reqBody, err := json.Marshal(map[string]string{"payload": scanned})
	if err != nil {
		return err
	}
	body, err := doRequest(http.MethodPost, "/v1/verifications", reqBody, http.StatusOK)
	if err != nil {
		return err
	}
	var result struct {
		Consistent  bool            `json:"consistent"`
		Mismatches  []string        `json:"mismatches"`
		Certificate certificateView `json:"certificate"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	if output == "json" {
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
	} else {
		if result.Consistent {
			fmt.Fprintln(cmd.OutOrStdout(), "VALID")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "MISMATCH (payload differs from record: %s)\n", strings.Join(result.Mismatches, ", "))
		}
		printCertificate(cmd.OutOrStdout(), result.Certificate)
	}
	// 記録と食い違うQRは改ざんの疑いがあるため失敗として終了する
	if !result.Consistent {
		return fmt.Errorf("payload does not match certificate %s: %s", result.Certificate.Identifier, strings.Join(result.Mismatches, ", "))
	}
	return nil
}

// listCmd は証明書一覧の取得コマンド。
func listCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issued certificates, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/certificates"
			if search != "" {
				path += "?q=" + url.QueryEscape(search)
			}
			body, err := doRequest(http.MethodGet, path, nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result struct {
				Certificates []certificateView `json:"certificates"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-22s %-24s %-24s %s\n", "IDENTIFIER", "STUDENT", "COURSE", "ISSUED_AT")
			for _, c := range result.Certificates {
				fmt.Fprintf(w, "%-22s %-24s %-24s %s\n", c.Identifier, c.StudentName, c.Course, c.IssuedAt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Filter by student name, identifier or course")
	return cmd
}

// downloadCmd は証明書PDFのダウンロードコマンド。
func downloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <identifier>",
		Short: "Download the certificate PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.ToUpper(strings.TrimSpace(args[0]))
			body, err := doRequest(http.MethodGet, "/v1/certificates/"+url.PathEscape(id)+"/document", nil, http.StatusOK)
			if err != nil {
				return err
			}
			if out == "" {
				out = "certificate-" + id + ".pdf"
			}
			if err := os.WriteFile(out, body, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", out, len(body))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default certificate-<identifier>.pdf)")
	return cmd
}

// payloadCmd はQRペイロードを扱うコマンド。
func payloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payload",
		Short: "Work with certificate QR payloads",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a scanned QR payload offline (reads stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := "-"
			if len(args) == 1 {
				file = args[0]
			}
			scanned, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			fields, err := payload.Decode(scanned)
			if err != nil {
				return err
			}

			if output == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(fields)
			}
			printCertificate(cmd.OutOrStdout(), certificateView{
				Identifier:  fields.Identifier,
				StudentID:   fields.StudentID,
				StudentName: fields.StudentName,
				Course:      fields.Course,
				University:  fields.University,
				IssuedAt:    "-",
			})
			return nil
		},
	})
	return cmd
}

func readInput(cmd *cobra.Command, file string) (string, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("reading payload: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// doRequest はAPIを呼び出し、期待するステータスならボディを返す。
func doRequest(method, path string, reqBody []byte, wantStatus int) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set CERTCTL_API_URL)")
	}

	var reader io.Reader
	if reqBody != nil {
		reader = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequest(method, apiURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		if errResp.Retryable {
			return fmt.Errorf("Error: %s (%s, retryable)", errResp.Message, errResp.Code)
		}
		return fmt.Errorf("Error: %s (%s)", errResp.Message, errResp.Code)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
