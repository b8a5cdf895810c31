package ingest

// PipelineConfig lists module names in the order they must run. Data
// source modules not listed in LowPriorityDataSource run in the high
// priority pipeline. Data artifact pipelines have no explicit order.
type PipelineConfig struct {
	HighPriorityDataSource []string `json:"high_priority_data_source,omitempty"`
	LowPriorityDataSource  []string `json:"low_priority_data_source,omitempty"`
	File                   []string `json:"file,omitempty"`
}

type pipelineTemplates struct {
	highPriorityDataSource []Template
	lowPriorityDataSource  []Template
	file                   []Template
	dataArtifact           []Template
}

// orderedTemplates keeps insertion order of templates keyed by name.
type orderedTemplates struct {
	names []string
	byKey map[string]Template
}

func newOrderedTemplates() *orderedTemplates {
	return &orderedTemplates{byKey: make(map[string]Template)}
}

func (o *orderedTemplates) add(t Template) {
	if _, ok := o.byKey[t.Name()]; ok {
		return
	}
	o.names = append(o.names, t.Name())
	o.byKey[t.Name()] = t
}

func (o *orderedTemplates) take(name string) (Template, bool) {
	t, ok := o.byKey[name]
	if ok {
		delete(o.byKey, name)
	}
	return t, ok
}

func (o *orderedTemplates) remaining() []Template {
	var ret []Template
	for _, n := range o.names {
		if t, ok := o.byKey[n]; ok {
			ret = append(ret, t)
		}
	}
	return ret
}

type templateSet struct {
	native   *orderedTemplates
	external *orderedTemplates
}

func newTemplateSet() templateSet {
	return templateSet{native: newOrderedTemplates(), external: newOrderedTemplates()}
}

func (s templateSet) add(t Template, class ModuleClass) {
	if class.External {
		s.external.add(t)
		return
	}
	s.native.add(t)
}

// takeConfigured removes the configured templates from the set and returns
// them in configuration order. Unknown names are skipped.
func (s templateSet) takeConfigured(names []string) []Template {
	var ret []Template
	for _, name := range names {
		if t, ok := s.native.take(name); ok {
			ret = append(ret, t)
			continue
		}
		if t, ok := s.external.take(name); ok {
			ret = append(ret, t)
		}
	}
	return ret
}

// takeRest returns the remaining templates, core before third party and
// native before external within each group.
func (s templateSet) takeRest(classify Classifier) []Template {
	var core, thirdParty []Template
	for _, t := range append(s.native.remaining(), s.external.remaining()...) {
		if classify(t.Factory).Core {
			core = append(core, t)
			continue
		}
		thirdParty = append(thirdParty, t)
	}
	return append(core, thirdParty...)
}

// sortTemplates distributes the enabled templates to the pipelines of a
// job. Configured entries come first, in configuration order.
func sortTemplates(templates []Template, cfg PipelineConfig, classify Classifier) pipelineTemplates {
	if classify == nil {
		classify = defaultClassifier
	}
	ds, file, artifact := newTemplateSet(), newTemplateSet(), newTemplateSet()
	for _, t := range templates {
		if !t.Enabled || t.Factory == nil {
			continue
		}
		class := classify(t.Factory)
		if t.IsDataSourceModuleTemplate() {
			ds.add(t, class)
		}
		if t.IsFileModuleTemplate() {
			file.add(t, class)
		}
		if t.IsDataArtifactModuleTemplate() {
			artifact.add(t, class)
		}
	}

	var ret pipelineTemplates
	ret.highPriorityDataSource = ds.takeConfigured(cfg.HighPriorityDataSource)
	ret.lowPriorityDataSource = ds.takeConfigured(cfg.LowPriorityDataSource)
	ret.highPriorityDataSource = append(ret.highPriorityDataSource, ds.takeRest(classify)...)
	ret.file = append(file.takeConfigured(cfg.File), file.takeRest(classify)...)
	ret.dataArtifact = artifact.takeRest(classify)
	return ret
}

func templateNames(templates []Template) []string {
	ret := make([]string, len(templates))
	for i, t := range templates {
		ret[i] = t.Name()
	}
	return ret
}
