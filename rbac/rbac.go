// Package rbac decides which roles may perform which actions. Policies are
// static and loaded from code; roles inherit along ADMIN > HR > SUPERVISOR.
package rbac

import (
	"fmt"

	"timekeeping/models"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

const (
	ObjCorrection = "correction"
	ObjAttendance = "attendance"
)

const (
	ActReview  = "review"
	ActList    = "list"
	ActReadAny = "read_any"
	ActCapture = "capture"
	ActSubmit  = "submit"
)

const modelText = `[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var policies = [][]string{
	{string(models.RoleSupervisor), ObjCorrection, ActReview},
	{string(models.RoleSupervisor), ObjCorrection, ActList},
	{string(models.RoleSupervisor), ObjCorrection, ActReadAny},
	{string(models.RoleEmployee), ObjAttendance, ActCapture},
	{string(models.RoleEmployee), ObjCorrection, ActSubmit},
}

var inheritance = [][]string{
	{string(models.RoleAdmin), string(models.RoleHR)},
	{string(models.RoleHR), string(models.RoleSupervisor)},
	{string(models.RoleSupervisor), string(models.RoleEmployee)},
}

type Authorizer interface {
	Can(role models.Role, obj, act string) bool
}

type Enforcer struct {
	enforcer *casbin.Enforcer
}

func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("new enforcer: %w", err)
	}
	if _, err := e.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("add policies: %w", err)
	}
	if _, err := e.AddGroupingPolicies(inheritance); err != nil {
		return nil, fmt.Errorf("add role inheritance: %w", err)
	}
	return &Enforcer{enforcer: e}, nil
}

// Can reports whether role may do act on obj. Enforcement errors deny.
func (e *Enforcer) Can(role models.Role, obj, act string) bool {
	ok, err := e.enforcer.Enforce(string(role), obj, act)
	return err == nil && ok
}
