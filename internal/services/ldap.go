package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/huangang/perfsentry/internal/config"
)

const ldapDialTimeout = 5 * time.Second

var (
	ErrLDAPDisabled     = errors.New("ldap is not enabled")
	ErrLDAPUserNotFound = errors.New("user not found in directory")
	ErrLDAPAmbiguous    = errors.New("username matches several directory entries")
)

var ldapAttributes = []string{"dn", "cn", "mail", "uid", "sAMAccountName", "department", "title"}

// LDAPUser is the profile read from the directory entry.
type LDAPUser struct {
	DN         string
	Username   string
	Email      string
	FullName   string
	Department string
	Position   string
}

type LDAPService struct {
	cfg  *config.LDAPConfig
	dial func(ctx context.Context) (*ldap.Conn, error)
}

func NewLDAPService(cfg *config.LDAPConfig) *LDAPService {
	s := &LDAPService{cfg: cfg}
	s.dial = s.connect
	return s
}

func (s *LDAPService) Enabled() bool {
	return s.cfg != nil && s.cfg.Enabled
}

func (s *LDAPService) connect(ctx context.Context) (*ldap.Conn, error) {
	scheme := "ldap"
	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: ldapDialTimeout})}
	if s.cfg.UseSSL {
		scheme = "ldaps"
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{ServerName: s.cfg.Host}))
	}
	conn, err := ldap.DialURL(fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to ldap: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}
	return conn, nil
}

// Authenticate finds the entry with the service account and then binds as
// that entry to check the password.
func (s *LDAPService) Authenticate(ctx context.Context, username, password string) (*LDAPUser, error) {
	if !s.Enabled() {
		return nil, ErrLDAPDisabled
	}
	// An empty password is an unauthenticated bind, which servers accept.
	if password == "" {
		return nil, ErrInvalidCredentials
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if s.cfg.BindDN != "" {
		if err := conn.Bind(s.cfg.BindDN, s.cfg.BindPassword); err != nil {
			return nil, fmt.Errorf("bind service account: %w", err)
		}
	}

	result, err := conn.Search(ldap.NewSearchRequest(
		s.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		userFilter(s.cfg.UserFilter, username),
		ldapAttributes,
		nil,
	))
	if err != nil && !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) {
		return nil, fmt.Errorf("search directory: %w", err)
	}
	switch {
	case result == nil || len(result.Entries) == 0:
		return nil, ErrLDAPUserNotFound
	case len(result.Entries) > 1:
		return nil, ErrLDAPAmbiguous
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return ldapUserFrom(entry), nil
}

func ldapUserFrom(entry *ldap.Entry) *LDAPUser {
	u := &LDAPUser{
		DN:         entry.DN,
		Username:   entry.GetAttributeValue("uid"),
		Email:      entry.GetAttributeValue("mail"),
		FullName:   entry.GetAttributeValue("cn"),
		Department: entry.GetAttributeValue("department"),
		Position:   entry.GetAttributeValue("title"),
	}
	// Active Directory
	if u.Username == "" {
		u.Username = entry.GetAttributeValue("sAMAccountName")
	}
	return u
}

// userFilter substitutes the escaped username into the configured filter.
func userFilter(pattern, username string) string {
	if pattern == "" {
		pattern = "(uid=%s)"
	}
	return fmt.Sprintf(pattern, ldap.EscapeFilter(username))
}
