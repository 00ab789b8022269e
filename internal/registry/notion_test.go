package registry

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/meridian-legal/evidence-cli/internal/model"
)

func TestLoadCatalogFromNotion_Success(t *testing.T) {
	mc := new(mockNotionClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "cat-db", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				makeCatalogPage("p1", "governing_law", "Governing Law", "Text",
					"Which jurisdiction's laws govern this agreement?",
					[]string{"jurisdiction", "venue"}, "Governing_Law__c", "Active"),
				makeCatalogPage("p2", "effective_date_term", "Effective Date", "Date",
					"What is the effective date of this agreement?",
					nil, "Effective_Date__c", "Active"),
			},
			HasMore: false,
		}, nil).Once()

	catalog, err := LoadCatalogFromNotion(ctx, mc, "cat-db")
	assert.NoError(t, err)
	assert.Len(t, catalog.Fields, 2)

	gl := catalog.ByKey("governing_law")
	assert.NotNil(t, gl)
	assert.Equal(t, "Governing Law", gl.Name)
	assert.Equal(t, model.FieldText, gl.Type)
	assert.Equal(t, []string{"jurisdiction", "venue"}, gl.Synonyms)
	assert.Equal(t, "Governing_Law__c", gl.SFField)
	assert.Equal(t, "active", gl.Status)

	ed := catalog.ByKey("effective_date_term")
	assert.NotNil(t, ed)
	assert.Equal(t, model.FieldDate, ed.Type)
	assert.Empty(t, ed.Synonyms)

	mc.AssertExpectations(t)
}

func TestLoadCatalogFromNotion_Pagination(t *testing.T) {
	mc := new(mockNotionClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "cat-db", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{
			makeCatalogPage("p1", "document_title", "Document Title", "Text", "What is the title?", nil, "", "Active"),
		},
		HasMore:    true,
		NextCursor: "cursor-next",
	}, nil).Once()

	mc.On("QueryDatabase", ctx, "cat-db", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == "cursor-next"
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{
			makeCatalogPage("p2", "parties_entities", "Parties", "List", "Who are the parties?", nil, "", "Active"),
		},
		HasMore: false,
	}, nil).Once()

	catalog, err := LoadCatalogFromNotion(ctx, mc, "cat-db")
	assert.NoError(t, err)
	assert.Len(t, catalog.Fields, 2)
	assert.NotNil(t, catalog.ByKey("document_title"))
	assert.NotNil(t, catalog.ByKey("parties_entities"))
	mc.AssertExpectations(t)
}

func TestLoadCatalogFromNotion_SkipsMalformedPages(t *testing.T) {
	mc := new(mockNotionClient)
	ctx := context.Background()

	noPrompt := makeCatalogPage("p3", "orphan_key", "Orphan", "Text", "", nil, "", "Active")

	mc.On("QueryDatabase", ctx, "cat-db", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				makeCatalogPage("p1", "governing_law", "Governing Law", "Text", "Which law governs?", nil, "", "Active"),
				makeCatalogPage("p2", "", "No Key", "Text", "Prompt present.", nil, "", "Active"),
				noPrompt,
			},
			HasMore: false,
		}, nil).Once()

	catalog, err := LoadCatalogFromNotion(ctx, mc, "cat-db")
	assert.NoError(t, err)
	assert.Len(t, catalog.Fields, 1)
	assert.NotNil(t, catalog.ByKey("governing_law"))
	mc.AssertExpectations(t)
}

func TestLoadCatalogFromNotion_Empty(t *testing.T) {
	mc := new(mockNotionClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "cat-db", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{},
			HasMore: false,
		}, nil).Once()

	catalog, err := LoadCatalogFromNotion(ctx, mc, "cat-db")
	assert.NoError(t, err)
	assert.Empty(t, catalog.Fields)
	mc.AssertExpectations(t)
}

func TestLoadCatalogFromNotion_QueryError(t *testing.T) {
	mc := new(mockNotionClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "cat-db", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(nil, assert.AnError).Once()

	catalog, err := LoadCatalogFromNotion(ctx, mc, "cat-db")
	assert.Error(t, err)
	assert.Nil(t, catalog)
	mc.AssertExpectations(t)
}

func TestParseCatalogPage_TypeDefaultsToText(t *testing.T) {
	p := makeCatalogPage("p1", "notice_requirements", "Notice", "", "How is notice given?", nil, "", "Active")
	delete(p.Properties, "Type")

	f, err := parseCatalogPage(p)
	assert.NoError(t, err)
	assert.Equal(t, model.FieldText, f.Type)
}

// makeCatalogPage builds a fake notionapi.Page with catalog properties.
func makeCatalogPage(id, key, name, ftype, prompt string, synonyms []string, sfField, status string) notionapi.Page {
	props := make(notionapi.Properties)

	props["Key"] = &notionapi.TitleProperty{
		Type: notionapi.PropertyTypeTitle,
		Title: []notionapi.RichText{
			{PlainText: key},
		},
	}

	props["Name"] = &notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{PlainText: name},
		},
	}

	props["Type"] = &notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: ftype},
	}

	props["Prompt"] = &notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{PlainText: prompt},
		},
	}

	var opts []notionapi.Option
	for _, s := range synonyms {
		opts = append(opts, notionapi.Option{Name: s})
	}
	props["Synonyms"] = &notionapi.MultiSelectProperty{
		Type:        notionapi.PropertyTypeMultiSelect,
		MultiSelect: opts,
	}

	props["SFField"] = &notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{PlainText: sfField},
		},
	}

	props["Status"] = &notionapi.StatusProperty{
		Type:   notionapi.PropertyTypeStatus,
		Status: notionapi.Status{Name: status},
	}

	return notionapi.Page{
		ID:         notionapi.ObjectID(id),
		Properties: props,
	}
}
