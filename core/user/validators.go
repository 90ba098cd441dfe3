package user

import (
	"bufio"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/academia/core"
)

const (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	usernameOrEmailTag  = "username_or_email"
	usernameOrEmailText = "one of username or email is required"

	pwdMinLen = 8
	pwdMaxSim = .7 // difflib quick ratio
)

var (
	specialRegex = regexp.MustCompile("[^A-Za-z0-9]")

	commonPasswords   []string // sorted
	commonPasswordsMu sync.RWMutex
)

// passwordRule is one rule of the password policy; attrs are the name, username & email of the user.
type passwordRule struct {
	tag   string
	text  string
	valid func(pwd string, attrs []string) bool
}

// passwordPolicy is applied in order, the first broken rule being reported.
var passwordPolicy = []passwordRule{
	{
		tag:  "pwdminlen",
		text: fmt.Sprintf("password must contain at least %d characters", pwdMinLen),
		valid: func(pwd string, _ []string) bool {
			return utf8.RuneCountInString(pwd) >= pwdMinLen
		},
	},
	{
		tag:  "pwdnospace",
		text: "password must not contain whitespace",
		valid: func(pwd string, _ []string) bool {
			return strings.IndexFunc(pwd, unicode.IsSpace) < 0
		},
	},
	{
		tag:  "pwdnotallnum",
		text: "password cannot be entirely numeric",
		valid: func(pwd string, _ []string) bool {
			return strings.IndexFunc(pwd, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0
		},
	},
	{
		tag:  "pwdcplx",
		text: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character",
		valid: func(pwd string, _ []string) bool {
			return strings.IndexFunc(pwd, unicode.IsUpper) >= 0 &&
				strings.IndexFunc(pwd, unicode.IsLower) >= 0 &&
				strings.IndexFunc(pwd, unicode.IsDigit) >= 0 &&
				specialRegex.MatchString(pwd)
		},
	},
	{
		tag:  "pwdtoosim",
		text: "password cannot be similar to user attributes",
		valid: func(pwd string, attrs []string) bool {
			pwdChars := strings.Split(strings.ToLower(pwd), "")
			for _, attr := range attrs {
				if attr == "" {
					continue
				}
				m := difflib.NewMatcher(pwdChars, strings.Split(strings.ToLower(attr), ""))
				if m.QuickRatio() >= pwdMaxSim {
					return false
				}
			}
			return true
		},
	},
	{
		tag:  "pwdnocommon",
		text: "password is too common",
		valid: func(pwd string, _ []string) bool {
			return !isCommonPassword(pwd)
		},
	},
}

// LoadCommonPasswords reads the list of passwords rejected by the password policy, one per line.
func LoadCommonPasswords(fsys fs.FS, name string) error {
	file, err := fsys.Open(name)
	if err != nil {
		return errors.Wrap(err, "opening common passwords")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	pwds := make([]string, 0, 128)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.ToLower(strings.TrimSpace(scanner.Text())); pwd != "" {
			pwds = append(pwds, pwd)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading common passwords")
	}
	sort.Strings(pwds)

	commonPasswordsMu.Lock()
	commonPasswords = pwds
	commonPasswordsMu.Unlock()
	return nil
}

func isCommonPassword(pwd string) bool {
	commonPasswordsMu.RLock()
	defer commonPasswordsMu.RUnlock()

	lpwd := strings.ToLower(pwd)
	idx := sort.SearchStrings(commonPasswords, lpwd)
	return idx < len(commonPasswords) && commonPasswords[idx] == lpwd
}

// InitValidators registers the user validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterValidator(validate, translator, allRolesTag, allRolesText, allRolesValidation)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{}, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, translator, usernameOrEmailTag, usernameOrEmailText)
	for _, rule := range passwordPolicy {
		core.RegisterCustomTranslation(validate, translator, rule.tag, rule.text)
	}
}

// Custom Validators

// allRolesValidation checks that provided user roles are all in AllRoles
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		if !core.StringInSlice(role, AllRoles) {
			return false
		}
	}
	return true
}

// userStructValidation does struct level validation on NewUser, UpdateUser and ResetUserPassword structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validateUsernameAndEmail(usr, sl)
		validatePassword(usr.Password, usr.Name, usr.Username, usr.Email, sl)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, usr.Name, usr.Username, usr.Email, sl)
		}
	case ResetUserPassword:
		if usr.Password != "" {
			validatePassword(usr.Password, "", "", "", sl)
		}
	}
}

// validateUsernameAndEmail checks that one of Username or Email is provided
func validateUsernameAndEmail(nu NewUser, sl validator.StructLevel) {
	if len(nu.Username) == 0 && len(nu.Email) == 0 {
		sl.ReportError(nu.Username, "username", "Username", usernameOrEmailTag, "")
		sl.ReportError(nu.Email, "email", "Email", usernameOrEmailTag, "")
	}
}

// validatePassword reports the first passwordPolicy rule broken by pwd.
func validatePassword(pwd, name, uname, email string, sl validator.StructLevel) {
	if tag := passwordPolicyViolation(pwd, name, uname, email); tag != "" {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}
}

// passwordPolicyViolation returns the tag of the first broken rule, if any.
func passwordPolicyViolation(pwd string, attrs ...string) string {
	for _, rule := range passwordPolicy {
		if !rule.valid(pwd, attrs) {
			return rule.tag
		}
	}
	return ""
}
