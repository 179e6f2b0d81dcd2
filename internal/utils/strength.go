package utils

import (
	"fmt"
	"strings"
	"unicode"
)

// MinPasswordScore is the lowest score ValidatePassword accepts.
const MinPasswordScore = 60

// StrengthLevel buckets a password score for display.
type StrengthLevel string

const (
	StrengthWeak   StrengthLevel = "weak"
	StrengthFair   StrengthLevel = "fair"
	StrengthGood   StrengthLevel = "good"
	StrengthStrong StrengthLevel = "strong"
)

// StrengthResult is the outcome of PasswordStrength.
type StrengthResult struct {
	Score    int           `json:"score"`
	Level    StrengthLevel `json:"level"`
	Feedback []string      `json:"feedback,omitempty"`
}

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "123456": {}, "12345678": {},
	"123456789": {}, "1234567890": {}, "qwerty": {}, "qwerty123": {}, "abc123": {},
	"111111": {}, "letmein": {}, "welcome": {}, "welcome1": {}, "admin": {},
	"iloveyou": {}, "monkey": {}, "dragon": {}, "football": {}, "baseball": {},
	"sunshine": {}, "princess": {}, "master": {}, "trustno1": {}, "passw0rd": {},
	"university": {}, "student": {}, "student123": {}, "campus": {}, "college": {},
}

var keyboardRows = []string{
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
	"1234567890",
}

// longestRow bounds the keyboard walk search; no longer substring can match.
const longestRow = 10

// PasswordStrength scores a password from 0 to 100.  Length and character
// variety add points; deny-listed passwords, sequential runs, repeated
// characters and keyboard walks subtract them.
func PasswordStrength(pw string) StrengthResult {
	var (
		res      StrengthResult
		score    int
		hasLower bool
		hasUpper bool
		hasDigit bool
		hasOther bool
	)
	if len(pw) > MaxPasswordBytes {
		return StrengthResult{Score: 0, Level: StrengthWeak, Feedback: []string{"use at most 72 bytes"}}
	}
	lower := strings.ToLower(pw)

	if _, ok := commonPasswords[lower]; ok {
		return StrengthResult{Score: 0, Level: StrengthWeak, Feedback: []string{"password is too common"}}
	}

	n := len([]rune(pw))
	switch {
	case n >= 16:
		score += 40
	case n >= 12:
		score += 30
	case n >= 8:
		score += 20
	default:
		res.Feedback = append(res.Feedback, "use at least 8 characters")
	}

	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasOther = true
		}
	}
	classes := 0
	for _, has := range []bool{hasLower, hasUpper, hasDigit, hasOther} {
		if has {
			classes++
		}
	}
	score += classes * 15
	if classes < 3 {
		res.Feedback = append(res.Feedback, "mix upper and lower case letters, digits and symbols")
	}

	if run := longestSequentialRun(lower); run >= 3 {
		score -= 5 * run
		res.Feedback = append(res.Feedback, "avoid sequences like abc or 123")
	}
	if rep := longestRepeat(pw); rep >= 3 {
		score -= 5 * rep
		res.Feedback = append(res.Feedback, "avoid repeated characters")
	}
	if walk := longestKeyboardWalk(lower); walk >= 4 {
		score -= 5 * walk
		res.Feedback = append(res.Feedback, "avoid keyboard patterns like qwerty")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	res.Score = score
	switch {
	case score >= 80:
		res.Level = StrengthStrong
	case score >= MinPasswordScore:
		res.Level = StrengthGood
	case score >= 40:
		res.Level = StrengthFair
	default:
		res.Level = StrengthWeak
	}
	return res
}

// ValidatePassword returns ErrWeakPassword, wrapped with the first piece of
// feedback, when pw scores below MinPasswordScore.
// Over-long passwords get ErrPasswordTooLong instead.
func ValidatePassword(pw string) error {
	if len(pw) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	res := PasswordStrength(pw)
	if res.Score >= MinPasswordScore {
		return nil
	}
	if len(res.Feedback) > 0 {
		return fmt.Errorf("%w: %s", ErrWeakPassword, res.Feedback[0])
	}
	return ErrWeakPassword
}

// longestSequentialRun returns the longest run of consecutive ascending or
// descending code points (abc, 321).
func longestSequentialRun(s string) int {
	rs := []rune(s)
	if len(rs) == 0 {
		return 0
	}
	best, up, down := 1, 1, 1
	for i := 1; i < len(rs); i++ {
		if rs[i] == rs[i-1]+1 {
			up++
		} else {
			up = 1
		}
		if rs[i] == rs[i-1]-1 {
			down++
		} else {
			down = 1
		}
		best = max(best, up, down)
	}
	return best
}

func longestRepeat(s string) int {
	rs := []rune(s)
	if len(rs) == 0 {
		return 0
	}
	best, cur := 1, 1
	for i := 1; i < len(rs); i++ {
		if rs[i] == rs[i-1] {
			cur++
		} else {
			cur = 1
		}
		best = max(best, cur)
	}
	return best
}

// longestKeyboardWalk returns the longest substring of s that appears,
// forwards or backwards, on a single keyboard row.
func longestKeyboardWalk(s string) int {
	best := 0
	for _, row := range keyboardRows {
		rev := reverse(row)
		for i := 0; i < len(s); i++ {
			for j := min(len(s), i+longestRow); j > i+best; j-- {
				sub := s[i:j]
				if strings.Contains(row, sub) || strings.Contains(rev, sub) {
					best = j - i
					break
				}
			}
		}
	}
	return best
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
