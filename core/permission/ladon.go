package permission

import (
	"context"
	"strings"

	"github.com/ory/ladon"
	"github.com/pkg/errors"
)

const (
	subjectPrefix  = "users:"
	resourcePrefix = "lms:"
)

var errInvalidPolicy = errors.New("policy does not describe a grant")

func Subject(userID string) string { return subjectPrefix + userID }

func ResourceName(resource string) string { return resourcePrefix + resource }

// policyManager exposes the grants as ladon policies. It is bound to the context of one request.
type policyManager struct {
	ctx  context.Context
	repo Repository
}

var _ ladon.Manager = (*policyManager)(nil)

func newPolicyManager(ctx context.Context, repo Repository) *policyManager {
	return &policyManager{ctx: ctx, repo: repo}
}

func grantToPolicy(g Grant) *ladon.DefaultPolicy {
	return &ladon.DefaultPolicy{
		ID:          g.ID,
		Description: "grant " + strings.Join(g.Actions, ",") + " on " + g.Resource,
		Subjects:    []string{Subject(g.UserID)},
		Resources:   []string{ResourceName(g.Resource)},
		Actions:     g.Actions,
		Effect:      ladon.AllowAccess,
	}
}

func policyToGrant(p ladon.Policy) (Grant, error) {
	if len(p.GetSubjects()) != 1 || len(p.GetResources()) != 1 || !p.AllowAccess() {
		return Grant{}, errInvalidPolicy
	}
	subject, resource := p.GetSubjects()[0], p.GetResources()[0]
	if !strings.HasPrefix(subject, subjectPrefix) || !strings.HasPrefix(resource, resourcePrefix) {
		return Grant{}, errInvalidPolicy
	}
	return Grant{
		ID:       p.GetID(),
		UserID:   strings.TrimPrefix(subject, subjectPrefix),
		Resource: strings.TrimPrefix(resource, resourcePrefix),
		Actions:  p.GetActions(),
	}, nil
}

func toPolicies(grants []Grant) ladon.Policies {
	policies := make(ladon.Policies, 0, len(grants))
	for _, g := range grants {
		policies = append(policies, grantToPolicy(g))
	}
	return policies
}

func (m *policyManager) Create(policy ladon.Policy) error {
	g, err := policyToGrant(policy)
	if err != nil {
		return err
	}
	_, err = m.repo.SaveGrant(m.ctx, g)
	return err
}

func (m *policyManager) Update(policy ladon.Policy) error {
	return m.Create(policy)
}

func (m *policyManager) Get(id string) (ladon.Policy, error) {
	g, err := m.repo.GetGrant(m.ctx, id)
	if err != nil {
		return nil, err
	}
	return grantToPolicy(g), nil
}

func (m *policyManager) Delete(id string) error {
	return m.repo.DeleteGrant(m.ctx, id)
}

func (m *policyManager) GetAll(limit, offset int64) (ladon.Policies, error) {
	grants, err := m.repo.QueryGrants(m.ctx, nil)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(grants)) {
		return ladon.Policies{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > int64(len(grants)) {
		end = int64(len(grants))
	}
	return toPolicies(grants[offset:end]), nil
}

func (m *policyManager) FindRequestCandidates(r *ladon.Request) (ladon.Policies, error) {
	return m.FindPoliciesForSubject(r.Subject)
}

func (m *policyManager) FindPoliciesForSubject(subject string) (ladon.Policies, error) {
	if !strings.HasPrefix(subject, subjectPrefix) {
		return ladon.Policies{}, nil
	}
	grants, err := m.repo.QueryGrants(m.ctx, &QueryFilter{UserID: strings.TrimPrefix(subject, subjectPrefix)})
	if err != nil {
		return nil, err
	}
	return toPolicies(grants), nil
}

func (m *policyManager) FindPoliciesForResource(resource string) (ladon.Policies, error) {
	if !strings.HasPrefix(resource, resourcePrefix) {
		return ladon.Policies{}, nil
	}
	grants, err := m.repo.QueryGrants(m.ctx, &QueryFilter{Resource: strings.TrimPrefix(resource, resourcePrefix)})
	if err != nil {
		return nil, err
	}
	return toPolicies(grants), nil
}
