package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/jacentio/canopy/model"
	"github.com/jacentio/canopy/tree"
	"github.com/jacentio/canopy/usecase"
)

type command struct {
	name string
	help string
	run  func(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error
}

var commands = []command{
	{"tree", "print the page tree: [-root id] [-depth n]", (*app).cmdTree},
	{"page", "print a page with its blocks: <id>", (*app).cmdPage},
	{"create", "create a page: -title t [-parent id] [-icon i] [-cover url] [-public]", (*app).cmdCreate},
	{"update", "update a page: [-title t] [-parent id|null] [-icon i] [-cover url] [-public] <id>", (*app).cmdUpdate},
	{"delete", "delete a page without children: <id>", (*app).cmdDelete},
	{"reorder", "reorder sibling pages: <id>...", (*app).cmdReorder},
	{"add-block", "append a block: -page id [-parent id] [-type t] [-lang l] <text>...", (*app).cmdAddBlock},
	{"move-block", "move a block: -parent id|null -order n <id>", (*app).cmdMoveBlock},
	{"delete-block", "delete a block: <id>", (*app).cmdDeleteBlock},
}

func (a *app) run(ctx context.Context, name string, args []string) error {
	for _, c := range commands {
		if c.name != name {
			continue
		}
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		return c.run(a, ctx, fs, args)
	}
	return fmt.Errorf("unknown command %q", name)
}

// oneID returns the single positional argument left after parsing fs.
func oneID(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: expected one id, got %d arguments", fs.Name(), fs.NArg())
	}
	return fs.Arg(0), nil
}

func (a *app) cmdTree(ctx context.Context, fs *flag.FlagSet, args []string) error {
	root := fs.String("root", "", "page to start from (default: the roots)")
	depth := fs.Int("depth", 0, "levels to load, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	nodes, err := a.tree.LoadTree(ctx, model.ParseRef(*root), *depth)
	tree.Walk(nodes, func(n *tree.Node, d int) {
		fmt.Printf("%s%s\n", strings.Repeat("  ", d), pageLine(n.Page))
	})
	return err
}

func (a *app) cmdPage(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneID(fs)
	if err != nil {
		return err
	}
	view, err := a.tree.FetchPage(ctx, id)
	if view == nil {
		if err == nil {
			err = fmt.Errorf("page %s not found", id)
		}
		return err
	}
	printView(view)
	return err
}

func (a *app) cmdCreate(ctx context.Context, fs *flag.FlagSet, args []string) error {
	title := fs.String("title", "", "page title")
	parent := fs.String("parent", "", "parent page id (default: root)")
	icon := fs.String("icon", "", "page icon")
	cover := fs.String("cover", "", "cover image URL")
	public := fs.Bool("public", false, "make the page public")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" {
		return errors.New("create: -title is required")
	}
	view, err := a.pages.Create(ctx, usecase.CreateInput{
		Title:    *title,
		Icon:     *icon,
		Cover:    *cover,
		ParentID: model.ParseRef(*parent),
		IsPublic: *public,
		UserID:   a.user,
	})
	if err != nil {
		return err
	}
	fmt.Println(view.ID)
	return nil
}

func (a *app) cmdUpdate(ctx context.Context, fs *flag.FlagSet, args []string) error {
	title := fs.String("title", "", "new title")
	parent := fs.String("parent", "", `new parent page id, "null" for the root`)
	icon := fs.String("icon", "", "new icon")
	cover := fs.String("cover", "", "new cover image URL")
	public := fs.Bool("public", false, "public flag")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneID(fs)
	if err != nil {
		return err
	}

	in := usecase.UpdateInput{ID: id, UserID: a.user}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "title":
			in.Title = title
		case "parent":
			in.ParentID = model.Ptr(model.ParseRef(*parent))
		case "icon":
			in.Icon = icon
		case "cover":
			in.Cover = cover
		case "public":
			in.IsPublic = public
		}
	})
	view, err := a.pages.Update(ctx, in)
	if err != nil {
		return err
	}
	printView(view)
	return nil
}

func (a *app) cmdDelete(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneID(fs)
	if err != nil {
		return err
	}
	return a.pages.Delete(ctx, usecase.DeleteInput{ID: id, UserID: a.user})
}

func (a *app) cmdReorder(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := fs.Args()
	if len(ids) == 0 {
		return errors.New("reorder: no ids")
	}
	// The store reorders a cached group only.
	first, err := a.tree.GetPage(ctx, ids[0])
	if err != nil {
		return err
	}
	if first == nil {
		return fmt.Errorf("page %s not found", ids[0])
	}
	if _, err := a.tree.FetchChildren(ctx, first.ParentID); err != nil {
		return err
	}
	return a.tree.ReorderPages(ctx, ids)
}

func (a *app) cmdAddBlock(ctx context.Context, fs *flag.FlagSet, args []string) error {
	page := fs.String("page", "", "page id")
	parent := fs.String("parent", "", "parent block id")
	typ := fs.String("type", string(model.BlockParagraph), "block type")
	lang := fs.String("lang", "", "code language")
	if err := fs.Parse(args); err != nil {
		return err
	}
	content, err := blockContent(model.BlockType(*typ), *lang, fs.Args())
	if err != nil {
		return err
	}
	b, err := a.tree.Blocks().Create(ctx, model.BlockDraft{
		Content:   content,
		ParentID:  model.ParseRef(*parent),
		PageID:    *page,
		CreatedBy: a.user,
	})
	if err != nil {
		return err
	}
	fmt.Println(b.ID)
	return nil
}

// blockContent builds the content of a block of type t from command
// arguments. List types take one item per argument; the others join them.
func blockContent(t model.BlockType, lang string, args []string) (model.Content, error) {
	text := strings.Join(args, " ")
	switch t {
	case model.BlockParagraph:
		return model.NewParagraph(text), nil
	case model.BlockQuote:
		return model.NewQuote(text), nil
	case model.BlockHeading1, model.BlockHeading2, model.BlockHeading3:
		return model.NewHeading(int(t[len(t)-1]-'0'), text)
	case model.BlockBulletList:
		return model.NewBulletList(args...), nil
	case model.BlockNumberedList:
		return model.NewNumberedList(args...), nil
	case model.BlockCode:
		return model.NewCode(text, lang)
	case model.BlockImage:
		return model.NewImage(text, "")
	default:
		return nil, fmt.Errorf("%w: %q cannot be built from arguments", model.ErrUnknownBlockType, t)
	}
}

func (a *app) cmdMoveBlock(ctx context.Context, fs *flag.FlagSet, args []string) error {
	parent := fs.String("parent", "", `new parent block id, "null" for the top level`)
	order := fs.Int("order", 0, "position in the page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneID(fs)
	if err != nil {
		return err
	}
	return a.tree.Blocks().Move(ctx, id, model.ParseRef(*parent), *order)
}

func (a *app) cmdDeleteBlock(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneID(fs)
	if err != nil {
		return err
	}
	return a.tree.Blocks().Delete(ctx, id)
}

func pageLine(p model.Page) string {
	title := p.Title
	if p.Icon != "" {
		title = p.Icon + " " + title
	}
	return fmt.Sprintf("%s  [%s]", title, p.ID)
}

func printView(v *model.PageView) {
	fmt.Println(pageLine(v.Page))
	fmt.Printf("  parent: %s  public: %t  edited by %s at %s\n",
		v.ParentID, v.IsPublic, v.LastEditedBy, v.LastEditedAt.Format("2006-01-02 15:04"))
	depth := map[string]int{}
	for _, b := range v.Blocks {
		d := 0
		if !b.ParentID.IsNull() {
			d = depth[b.ParentID.ID()] + 1
		}
		depth[b.ID] = d
		fmt.Printf("  %s%-12s %s  [%s]\n", strings.Repeat("  ", d), b.Type, summary(b.Content), b.ID)
	}
}

// summary renders block content on one line.
func summary(c model.Content) string {
	switch c := c.(type) {
	case model.Paragraph:
		return c.Text
	case model.Heading:
		return c.Text
	case model.Quote:
		return "> " + c.Text
	case model.BulletList:
		return strings.Join(c.Items, " · ")
	case model.NumberedList:
		return strings.Join(c.Items, " · ")
	case model.Code:
		return fmt.Sprintf("%s (%d bytes)", c.Language, len(c.Text))
	case model.Image:
		return c.URL
	case model.Table:
		return fmt.Sprintf("%d rows", len(c.Rows))
	}
	return ""
}
