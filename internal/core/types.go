package core

import "foiahub/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Agency             = domain.Agency
	Office             = domain.Office
	Requester          = domain.Requester
	FOIARequest        = domain.FOIARequest
	Document           = domain.Document
	ContactInfo        = domain.ContactInfo
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
)

const (
	EntityAgency    = domain.EntityAgency
	EntityOffice    = domain.EntityOffice
	EntityRequester = domain.EntityRequester
	EntityRequest   = domain.EntityRequest
	EntityDocument  = domain.EntityDocument
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
