// Package importer turns an employee spreadsheet into directory rows. Header
// aliases are resolved once here, at the input boundary, through a single
// mapping table; business logic only ever sees canonical fields.
package importer

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"meetsign/internal/directory"
)

// aliases maps every accepted column header to its canonical field. The
// non-ASCII entries match the headers of the legacy spreadsheets this tool
// exists to ingest.
var aliases = map[string]string{
	"name":          "name",
	"姓名":            "name",
	"employee_id":   "employee_id",
	"工号":            "employee_id",
	"employee_code": "employee_code",
	"员工编号":          "employee_code",
	"department":    "department",
	"所属部门":          "department",
	"phone":         "phone",
	"手机":            "phone",
	"email":         "email",
	"邮件地址":          "email",
	"tags":          "tags",
	"职务":            "tags",
}

// ReadFile parses the first sheet of an xlsx workbook into employees. The
// first row is the header; unknown columns are ignored.
func ReadFile(path string) ([]directory.Employee, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return parse(rows)
}

func parse(rows [][]string) ([]directory.Employee, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet is empty")
	}

	// Resolve the header once; column index -> canonical field.
	fields := make(map[int]string)
	for col, header := range rows[0] {
		if canonical, ok := aliases[strings.TrimSpace(header)]; ok {
			fields[col] = canonical
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no recognized columns in header row")
	}

	var employees []directory.Employee
	for _, row := range rows[1:] {
		var e directory.Employee
		empty := true
		for col, field := range fields {
			if col >= len(row) {
				continue
			}
			val := strings.TrimSpace(row[col])
			if val == "" {
				continue
			}
			empty = false
			switch field {
			case "name":
				e.Name = val
			case "employee_id":
				e.EmployeeID = val
			case "employee_code":
				e.EmployeeCode = val
			case "department":
				e.Department = val
			case "phone":
				e.Phone = val
			case "email":
				e.Email = val
			case "tags":
				e.Tags = val
			}
		}
		if empty {
			continue
		}
		employees = append(employees, e)
	}
	return employees, nil
}
