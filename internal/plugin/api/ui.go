package api

import "context"

func (r *Registry) uiFactory(pluginID string) (Module, error) {
	utils := &Utils{registry: r, pluginID: pluginID}
	mod := utils.Module()

	funcs := mod.Functions()
	delete(funcs, "registerCommand")
	delete(funcs, "unregisterCommand")
	funcs["showDialog"] = func(ctx context.Context, args []any) (any, error) {
		if r.host.Dialogs == nil {
			return nil, hostUnavailable(NamespaceUI)
		}
		return r.host.Dialogs.ShowDialog(ctx, pluginID, optMap(args, 0))
	}
	return NewModule(NamespaceUI, funcs), nil
}

func (r *Registry) settingsFactory(pluginID string) (Module, error) {
	s := r.host.Settings
	return NewModule(NamespaceSettings, map[string]Function{
		"get": func(ctx context.Context, args []any) (any, error) {
			key, err := argString("settings.get", args, 0)
			if err != nil {
				return nil, err
			}
			if s == nil {
				return argAt(args, 1), nil
			}
			v, ok, err := s.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				return argAt(args, 1), nil
			}
			return v, nil
		},
		"set": func(ctx context.Context, args []any) (any, error) {
			key, err := argString("settings.set", args, 0)
			if err != nil {
				return nil, err
			}
			if s == nil {
				return nil, nil
			}
			return nil, s.Set(ctx, key, argAt(args, 1))
		},
		"addSection": func(ctx context.Context, args []any) (any, error) {
			if s == nil {
				return nil, nil
			}
			id, err := s.AddSection(ctx, pluginID, optMap(args, 0))
			if err != nil {
				return nil, err
			}
			r.injections.add(pluginID, injectSettings, id)
			return id, nil
		},
		"removeSection": func(ctx context.Context, args []any) (any, error) {
			id, err := argString("settings.removeSection", args, 0)
			if err != nil {
				return nil, err
			}
			r.injections.remove(pluginID, injectSettings, id)
			if s == nil {
				return nil, nil
			}
			return nil, s.RemoveSection(ctx, pluginID, id)
		},
	}), nil
}

func (r *Registry) navigationFactory(pluginID string) (Module, error) {
	nav := r.host.Navigation
	return NewModule(NamespaceNavigation, map[string]Function{
		"addItem": func(ctx context.Context, args []any) (any, error) {
			if nav == nil {
				return nil, nil
			}
			id, err := nav.AddItem(ctx, pluginID, optMap(args, 0))
			if err != nil {
				return nil, err
			}
			r.injections.add(pluginID, injectNavigation, id)
			return id, nil
		},
		"removeItem": func(ctx context.Context, args []any) (any, error) {
			id, err := argString("navigation.removeItem", args, 0)
			if err != nil {
				return nil, err
			}
			r.injections.remove(pluginID, injectNavigation, id)
			if nav == nil {
				return nil, nil
			}
			return nil, nav.RemoveItem(ctx, pluginID, id)
		},
		"getCurrentView": func(ctx context.Context, _ []any) (any, error) {
			if nav == nil {
				return nil, hostUnavailable(NamespaceNavigation)
			}
			return nav.CurrentView(ctx)
		},
		"navigateTo": func(ctx context.Context, args []any) (any, error) {
			view, err := argString("navigation.navigateTo", args, 0)
			if err != nil {
				return nil, err
			}
			if nav == nil {
				return nil, nil
			}
			return nil, nav.NavigateTo(ctx, view)
		},
	}), nil
}

func (r *Registry) contextMenuFactory(pluginID string) (Module, error) {
	menu := r.host.ContextMenu
	return NewModule(NamespaceContextMenu, map[string]Function{
		"addItem": func(ctx context.Context, args []any) (any, error) {
			if menu == nil {
				return nil, nil
			}
			id, err := menu.AddItem(ctx, pluginID, optMap(args, 0))
			if err != nil {
				return nil, err
			}
			r.injections.add(pluginID, injectContextMenu, id)
			return id, nil
		},
		"removeItem": func(ctx context.Context, args []any) (any, error) {
			id, err := argString("contextMenu.removeItem", args, 0)
			if err != nil {
				return nil, err
			}
			r.injections.remove(pluginID, injectContextMenu, id)
			if menu == nil {
				return nil, nil
			}
			return nil, menu.RemoveItem(ctx, pluginID, id)
		},
	}), nil
}
