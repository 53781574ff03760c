package service

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	finance "github.com/smallbiznis/stitchboard/internal/finance/domain"
)

var costLabels = []struct {
	category finance.CostCategory
	label    string
}{
	{finance.CostTailorWages, "Tailor wages"},
	{finance.CostMaterials, "Materials"},
}

func (s *Service) RenderPLStatementPDF(ctx context.Context, statement finance.PLStatement) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Profit & Loss Statement", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		col.New(4),
	)
	m.AddRow(15,
		col.New(8).Add(
			text.New("Tenant: "+statement.TenantID.String(), props.Text{Size: 9}),
			text.New(fmt.Sprintf("Period: %s to %s",
				statement.Start.Format("2006-01-02"),
				statement.End.AddDate(0, 0, -1).Format("2006-01-02")), props.Text{Size: 9, Top: 4}),
			text.New("Generated: "+statement.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), props.Text{Size: 9, Top: 8}),
		),
		col.New(4),
	)

	m.AddRow(10,
		text.NewCol(8, "Revenue", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(4, money(statement.Revenue), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)
	if statement.UnpricedShipments > 0 {
		m.AddRow(8,
			text.NewCol(12, fmt.Sprintf("%d shipment(s) had no effective vendor price and are excluded.", statement.UnpricedShipments),
				props.Text{Size: 8, Style: fontstyle.Italic}),
		)
	}

	m.AddRow(10, text.NewCol(12, "Costs", props.Text{Style: fontstyle.Bold, Size: 10, Top: 3}))
	for _, entry := range costLabels {
		m.AddRow(8,
			col.New(2),
			text.NewCol(6, entry.label, props.Text{Size: 9}),
			text.NewCol(4, money(statement.Costs.Categories[entry.category]), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		text.NewCol(8, "Total costs", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(4, money(statement.Costs.Total), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	m.AddRow(12,
		text.NewCol(8, "Gross profit", props.Text{Style: fontstyle.Bold, Size: 11, Top: 3}),
		text.NewCol(4, money(statement.GrossProfit), props.Text{Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 3}),
	)
	margin := "n/a"
	if statement.Margin != nil {
		margin = statement.Margin.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
	}
	m.AddRow(10,
		text.NewCol(8, "Margin", props.Text{Size: 10}),
		text.NewCol(4, margin, props.Text{Size: 10, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func money(value decimal.Decimal) string {
	return value.StringFixed(2)
}
