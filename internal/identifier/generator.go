// Package identifier は証明書IDの生成を提供する。
package identifier

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

// fragmentLen はIDに付与するコース名断片の最大長。
const fragmentLen = 4

// pattern は生成されるIDの形式。検証APIでの入力チェックにも使う。
var pattern = regexp.MustCompile(`^[0-9A-Z]{8,16}(-[0-9A-Z]{1,4})?$`)

// Generator は発行時刻を36進数で表した証明書IDを生成する。
// 同一プロセス内では時刻が単調増加するよう補正するため、連続呼び出しでもIDは重複しない。
type Generator struct {
	now func() time.Time

	mu   sync.Mutex
	last int64
}

// NewGenerator は新しいGeneratorを生成する。nowがnilの場合はtime.Nowを使う。
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Generate は証明書IDを生成する。courseが英数字を含まない場合は時刻部分のみになる。
func (g *Generator) Generate(course string) string {
	id := strings.ToUpper(strconv.FormatInt(g.tick(), 36))
	if frag := fragment(course); frag != "" {
		id += "-" + frag
	}
	return id
}

// tick は前回値より必ず大きいナノ秒時刻を返す。
func (g *Generator) tick() int64 {
	n := g.now().UnixNano()

	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= g.last {
		n = g.last + 1
	}
	g.last = n
	return n
}

// fragment はコース名から英数字のみを大文字で最大fragmentLen文字取り出す。
func fragment(s string) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= fragmentLen {
			break
		}
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Valid はsが生成されうるIDの形式かどうかを返す。
func Valid(s string) bool {
	return pattern.MatchString(s)
}
