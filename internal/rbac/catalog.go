package rbac

import "sort"

// Typed permission constants. Call sites reference these, never raw string
// literals; the catalog below is built from the same table.
var (
	PermAgenciesViewAll   = NewKey(ResourceAgencies, ActionView, ScopeAll)
	PermAgenciesCreateAll = NewKey(ResourceAgencies, ActionCreate, ScopeAll)
	PermAgenciesUpdateAll = NewKey(ResourceAgencies, ActionUpdate, ScopeAll)
	PermAgenciesDeleteAll = NewKey(ResourceAgencies, ActionDelete, ScopeAll)

	PermCompaniesViewAll   = NewKey(ResourceCompanies, ActionView, ScopeAll)
	PermCompaniesCreateAll = NewKey(ResourceCompanies, ActionCreate, ScopeAll)
	PermCompaniesUpdateAll = NewKey(ResourceCompanies, ActionUpdate, ScopeAll)
	PermCompaniesDeleteAll = NewKey(ResourceCompanies, ActionDelete, ScopeAll)

	PermContractorsViewAll   = NewKey(ResourceContractors, ActionView, ScopeAll)
	PermContractorsViewOwn   = NewKey(ResourceContractors, ActionView, ScopeOwn)
	PermContractorsCreateAll = NewKey(ResourceContractors, ActionCreate, ScopeAll)
	PermContractorsUpdateAll = NewKey(ResourceContractors, ActionUpdate, ScopeAll)
	PermContractorsUpdateOwn = NewKey(ResourceContractors, ActionUpdate, ScopeOwn)
	PermContractorsDeleteAll = NewKey(ResourceContractors, ActionDelete, ScopeAll)

	PermContractsViewAll    = NewKey(ResourceContracts, ActionView, ScopeAll)
	PermContractsViewOwn    = NewKey(ResourceContracts, ActionView, ScopeOwn)
	PermContractsCreateAll  = NewKey(ResourceContracts, ActionCreate, ScopeAll)
	PermContractsUpdateAll  = NewKey(ResourceContracts, ActionUpdate, ScopeAll)
	PermContractsApproveAll = NewKey(ResourceContracts, ActionApprove, ScopeAll)
	PermContractsDeleteAll  = NewKey(ResourceContracts, ActionDelete, ScopeAll)

	PermInvoicesViewAll   = NewKey(ResourceInvoices, ActionView, ScopeAll)
	PermInvoicesViewOwn   = NewKey(ResourceInvoices, ActionView, ScopeOwn)
	PermInvoicesCreateAll = NewKey(ResourceInvoices, ActionCreate, ScopeAll)
	PermInvoicesCreateOwn = NewKey(ResourceInvoices, ActionCreate, ScopeOwn)
	PermInvoicesUpdateAll = NewKey(ResourceInvoices, ActionUpdate, ScopeAll)
	PermInvoicesUpdateOwn = NewKey(ResourceInvoices, ActionUpdate, ScopeOwn)
	PermInvoicesDeleteAll = NewKey(ResourceInvoices, ActionDelete, ScopeAll)
	PermInvoicesExportAll = NewKey(ResourceInvoices, ActionExport, ScopeAll)

	PermPayslipsViewAll   = NewKey(ResourcePayslips, ActionView, ScopeAll)
	PermPayslipsViewOwn   = NewKey(ResourcePayslips, ActionView, ScopeOwn)
	PermPayslipsCreateAll = NewKey(ResourcePayslips, ActionCreate, ScopeAll)
	PermPayslipsExportAll = NewKey(ResourcePayslips, ActionExport, ScopeAll)
	PermPayslipsExportOwn = NewKey(ResourcePayslips, ActionExport, ScopeOwn)

	PermTimesheetsViewAll    = NewKey(ResourceTimesheets, ActionView, ScopeAll)
	PermTimesheetsViewOwn    = NewKey(ResourceTimesheets, ActionView, ScopeOwn)
	PermTimesheetsCreateOwn  = NewKey(ResourceTimesheets, ActionCreate, ScopeOwn)
	PermTimesheetsUpdateAll  = NewKey(ResourceTimesheets, ActionUpdate, ScopeAll)
	PermTimesheetsUpdateOwn  = NewKey(ResourceTimesheets, ActionUpdate, ScopeOwn)
	PermTimesheetsApproveAll = NewKey(ResourceTimesheets, ActionApprove, ScopeAll)
	PermTimesheetsDeleteAll  = NewKey(ResourceTimesheets, ActionDelete, ScopeAll)

	PermExpensesViewAll    = NewKey(ResourceExpenses, ActionView, ScopeAll)
	PermExpensesViewOwn    = NewKey(ResourceExpenses, ActionView, ScopeOwn)
	PermExpensesCreateOwn  = NewKey(ResourceExpenses, ActionCreate, ScopeOwn)
	PermExpensesUpdateOwn  = NewKey(ResourceExpenses, ActionUpdate, ScopeOwn)
	PermExpensesApproveAll = NewKey(ResourceExpenses, ActionApprove, ScopeAll)
	PermExpensesDeleteAll  = NewKey(ResourceExpenses, ActionDelete, ScopeAll)

	PermTasksViewAll   = NewKey(ResourceTasks, ActionView, ScopeAll)
	PermTasksViewOwn   = NewKey(ResourceTasks, ActionView, ScopeOwn)
	PermTasksCreateAll = NewKey(ResourceTasks, ActionCreate, ScopeAll)
	PermTasksUpdateAll = NewKey(ResourceTasks, ActionUpdate, ScopeAll)
	PermTasksUpdateOwn = NewKey(ResourceTasks, ActionUpdate, ScopeOwn)
	PermTasksDeleteAll = NewKey(ResourceTasks, ActionDelete, ScopeAll)

	PermLeadsViewAll   = NewKey(ResourceLeads, ActionView, ScopeAll)
	PermLeadsCreateAll = NewKey(ResourceLeads, ActionCreate, ScopeAll)
	PermLeadsUpdateAll = NewKey(ResourceLeads, ActionUpdate, ScopeAll)
	PermLeadsDeleteAll = NewKey(ResourceLeads, ActionDelete, ScopeAll)

	PermUsersViewAll   = NewKey(ResourceUsers, ActionView, ScopeAll)
	PermUsersManageAll = NewKey(ResourceUsers, ActionManage, ScopeAll)

	PermRolesViewAll   = NewKey(ResourceRoles, ActionView, ScopeAll)
	PermRolesManageAll = NewKey(ResourceRoles, ActionManage, ScopeAll)

	PermAuditViewAll   = NewKey(ResourceAudit, ActionView, ScopeAll)
	PermAuditExportAll = NewKey(ResourceAudit, ActionExport, ScopeAll)
)

// Grant describes one catalog entry.
type Grant struct {
	Key         Key
	Description string
}

var grants = []Grant{
	{PermAgenciesViewAll, "View all agencies in the tenant"},
	{PermAgenciesCreateAll, "Create agencies"},
	{PermAgenciesUpdateAll, "Update any agency"},
	{PermAgenciesDeleteAll, "Delete agencies"},

	{PermCompaniesViewAll, "View all companies in the tenant"},
	{PermCompaniesCreateAll, "Create companies"},
	{PermCompaniesUpdateAll, "Update any company"},
	{PermCompaniesDeleteAll, "Delete companies"},

	{PermContractorsViewAll, "View all contractors in the tenant"},
	{PermContractorsViewOwn, "View the caller's own contractor profile"},
	{PermContractorsCreateAll, "Create contractors"},
	{PermContractorsUpdateAll, "Update any contractor"},
	{PermContractorsUpdateOwn, "Update the caller's own contractor profile"},
	{PermContractorsDeleteAll, "Delete contractors"},

	{PermContractsViewAll, "View all contracts in the tenant"},
	{PermContractsViewOwn, "View contracts anchored to the caller"},
	{PermContractsCreateAll, "Create contracts"},
	{PermContractsUpdateAll, "Update any contract"},
	{PermContractsApproveAll, "Approve contracts"},
	{PermContractsDeleteAll, "Delete contracts"},

	{PermInvoicesViewAll, "View all invoices in the tenant"},
	{PermInvoicesViewOwn, "View invoices anchored to the caller"},
	{PermInvoicesCreateAll, "Create invoices for any owner"},
	{PermInvoicesCreateOwn, "Create invoices anchored to the caller"},
	{PermInvoicesUpdateAll, "Update any invoice"},
	{PermInvoicesUpdateOwn, "Update invoices anchored to the caller"},
	{PermInvoicesDeleteAll, "Delete invoices"},
	{PermInvoicesExportAll, "Export invoice data"},

	{PermPayslipsViewAll, "View all payslips in the tenant"},
	{PermPayslipsViewOwn, "View the caller's own payslips"},
	{PermPayslipsCreateAll, "Create payslips"},
	{PermPayslipsExportAll, "Export any payslip"},
	{PermPayslipsExportOwn, "Export the caller's own payslips"},

	{PermTimesheetsViewAll, "View all timesheets in the tenant"},
	{PermTimesheetsViewOwn, "View the caller's own timesheets"},
	{PermTimesheetsCreateOwn, "Submit timesheets for the caller"},
	{PermTimesheetsUpdateAll, "Update any timesheet"},
	{PermTimesheetsUpdateOwn, "Update the caller's own timesheets"},
	{PermTimesheetsApproveAll, "Approve timesheets"},
	{PermTimesheetsDeleteAll, "Delete timesheets"},

	{PermExpensesViewAll, "View all expenses in the tenant"},
	{PermExpensesViewOwn, "View the caller's own expenses"},
	{PermExpensesCreateOwn, "Submit expenses for the caller"},
	{PermExpensesUpdateOwn, "Update the caller's own expenses"},
	{PermExpensesApproveAll, "Approve expenses"},
	{PermExpensesDeleteAll, "Delete expenses"},

	{PermTasksViewAll, "View all tasks in the tenant"},
	{PermTasksViewOwn, "View tasks assigned to the caller"},
	{PermTasksCreateAll, "Create tasks"},
	{PermTasksUpdateAll, "Update any task"},
	{PermTasksUpdateOwn, "Update tasks assigned to the caller"},
	{PermTasksDeleteAll, "Delete tasks"},

	{PermLeadsViewAll, "View all leads in the tenant"},
	{PermLeadsCreateAll, "Create leads"},
	{PermLeadsUpdateAll, "Update leads"},
	{PermLeadsDeleteAll, "Delete leads"},

	{PermUsersViewAll, "View tenant users"},
	{PermUsersManageAll, "Create tenant users, assign roles, deactivate"},

	{PermRolesViewAll, "View tenant roles and the permission catalog"},
	{PermRolesManageAll, "Create, update and delete tenant roles"},

	{PermAuditViewAll, "Query the audit trail"},
	{PermAuditExportAll, "Export audit trail data"},
}

// Catalog is the immutable enumeration of every permission the system
// recognises. It is populated once at process start; runtime writes are a
// deploy-time migration concern, never a request-time one.
type Catalog struct {
	ordered []Grant
	index   map[Key]Grant
}

// NewCatalog builds the catalog from the static grant table. It panics on a
// duplicate key, which is a programming error caught at startup or in tests.
func NewCatalog() *Catalog {
	index := make(map[Key]Grant, len(grants))
	ordered := make([]Grant, len(grants))
	copy(ordered, grants)
	for _, grant := range ordered {
		if _, dup := index[grant.Key]; dup {
			panic("rbac: duplicate catalog key " + grant.Key.String())
		}
		index[grant.Key] = grant
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Key.String() < ordered[j].Key.String()
	})
	return &Catalog{ordered: ordered, index: index}
}

// All returns every grant ordered by key, without duplicates.
func (c *Catalog) All() []Grant {
	out := make([]Grant, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Keys returns every key's string form ordered, for seeding and verification.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.ordered))
	for i, grant := range c.ordered {
		out[i] = grant.Key.String()
	}
	return out
}

// Exists reports whether the key is part of the catalog.
func (c *Catalog) Exists(key Key) bool {
	_, ok := c.index[key]
	return ok
}

// Lookup returns the grant for key.
func (c *Catalog) Lookup(key Key) (Grant, bool) {
	grant, ok := c.index[key]
	return grant, ok
}

// Size returns the number of catalog entries.
func (c *Catalog) Size() int {
	return len(c.ordered)
}
