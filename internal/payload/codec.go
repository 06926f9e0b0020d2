// Package payload はQRコードに埋め込む検証ペイロードの形式を定義する。
//
// 形式（v1、公開済みのため変更禁止）は1行1項目のテキストで、順序は固定。
//
//	Certificate ID: <identifier>
//	Student ID: <studentId>
//	Student Name: <studentName>
//	Course: <course>
//	University: <university>
//
// 区切りは "\n"、末尾の改行はない。汎用のQRリーダーでそのまま読めることを優先している。
package payload

import (
	"errors"
	"fmt"
	"strings"

	"certificate-service/internal/domain"
)

// ラベルはワイヤ形式の一部。
const (
	LabelIdentifier  = "Certificate ID"
	LabelStudentID   = "Student ID"
	LabelStudentName = "Student Name"
	LabelCourse      = "Course"
	LabelUniversity  = "University"
)

const separator = ": "

// ErrMalformedPayload はペイロードを解釈できない場合のエラー。
var ErrMalformedPayload = errors.New("malformed certificate payload")

// Fields はペイロードに含まれる項目。
type Fields struct {
	Identifier  string `json:"identifier"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Course      string `json:"course"`
	University  string `json:"university"`
}

// FromCertificate は証明書レコードからペイロード項目を取り出す。
func FromCertificate(c *domain.Certificate) Fields {
	return Fields{
		Identifier:  c.Identifier,
		StudentID:   c.StudentID,
		StudentName: c.StudentName,
		Course:      c.Course,
		University:  c.University,
	}
}

// Encode は証明書レコードをペイロード文字列に変換する。
func Encode(c *domain.Certificate) string {
	f := FromCertificate(c)
	return strings.Join([]string{
		LabelIdentifier + separator + f.Identifier,
		LabelStudentID + separator + f.StudentID,
		LabelStudentName + separator + f.StudentName,
		LabelCourse + separator + f.Course,
		LabelUniversity + separator + f.University,
	}, "\n")
}

// Decode はスキャンされたペイロード文字列を項目に戻す。
// 行の順序は問わず、CRLFと未知のラベルは許容する。
func Decode(s string) (*Fields, error) {
	var f Fields
	found := make(map[string]bool, 5)

	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		label, value, ok := strings.Cut(line, separator)
		if !ok {
			return nil, fmt.Errorf("%w: line %q has no label", ErrMalformedPayload, line)
		}

		switch label {
		case LabelIdentifier:
			f.Identifier = value
		case LabelStudentID:
			f.StudentID = value
		case LabelStudentName:
			f.StudentName = value
		case LabelCourse:
			f.Course = value
		case LabelUniversity:
			f.University = value
		default:
			continue
		}
		if found[label] {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrMalformedPayload, label)
		}
		found[label] = true
	}

	for _, label := range []string{LabelIdentifier, LabelStudentID, LabelStudentName, LabelCourse, LabelUniversity} {
		if !found[label] {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedPayload, label)
		}
	}
	return &f, nil
}

// Mismatches は保存済みレコードと異なる項目のラベルを返す。一致すれば空。
func (f *Fields) Mismatches(c *domain.Certificate) []string {
	stored := FromCertificate(c)

	var diff []string
	if f.Identifier != stored.Identifier {
		diff = append(diff, LabelIdentifier)
	}
	if f.StudentID != stored.StudentID {
		diff = append(diff, LabelStudentID)
	}
	if f.StudentName != stored.StudentName {
		diff = append(diff, LabelStudentName)
	}
	if f.Course != stored.Course {
		diff = append(diff, LabelCourse)
	}
	if f.University != stored.University {
		diff = append(diff, LabelUniversity)
	}
	return diff
}
